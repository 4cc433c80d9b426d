package domain

// Identity es el registro serializado junto al token de sesion.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Session representa la identidad autenticada de un contexto de navegacion.
type Session struct {
	Identity Identity `json:"user"`
	Role     Role     `json:"role"`
	Token    string   `json:"-"`
}

func (s Session) Authenticated() bool {
	return s.Identity.ID != "" && s.Identity.Email != "" && s.Role.Valid()
}
