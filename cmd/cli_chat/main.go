package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"turbotalk/internal/config"
	"turbotalk/internal/db"
	"turbotalk/internal/domain"
	"turbotalk/internal/repository"
	"turbotalk/internal/service"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	var (
		userRepo    repository.UserRepository    = repository.NewMemoryUserRepository()
		profileRepo repository.ProfileRepository = repository.NewMemoryProfileRepository()
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			log.Fatal(err)
		}
		userRepo = repository.NewPgUserRepository(pool)
		profileRepo = repository.NewPgProfileRepository(pool)
	}

	provider := service.NewAccountProvider(logger, userRepo, profileRepo)
	if cfg.SeedDemoAccounts {
		if err := service.SeedDemoAccounts(ctx, logger, provider); err != nil {
			log.Fatal(err)
		}
	}
	store := service.NewSessionStore(service.SessionStoreDeps{
		Logger:   logger,
		Provider: provider,
		Tokens:   service.NewTokenService(cfg.JWTSecret, cfg.TokenTTL()),
		Limiter:  service.NewAttemptLimiter(cfg.SignInWindow(), cfg.SignInMaxAttempts),
	})

	var customerRules *service.IntentResolver
	if cfg.IntentRulesFile != "" {
		if customerRules, err = service.LoadIntentRules(cfg.IntentRulesFile); err != nil {
			log.Fatalf("load intent rules: %v", err)
		}
	}
	chatSvc := service.NewChatService(logger, service.NewResponseScheduler(cfg.ResponseDelay(), logger, nil), service.DefaultPersonas(customerRules))
	defer chatSvc.Shutdown()

	for {
		session, signedIn := store.Current()
		fmt.Println("\n===== TurboTalk =====")
		if signedIn {
			fmt.Printf("Signed in as %s (%s)\n", session.Identity.Email, session.Role)
		}
		fmt.Println("[1] Chat with the assistant")
		fmt.Println("[2] Sign in")
		fmt.Println("[3] Sign up")
		fmt.Println("[4] Sign out")
		fmt.Println("[5] Exit")
		fmt.Print("Select an option: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(line) {
		case "1":
			persona := service.PersonaCustomer
			if verdict := service.Decide(store.Snapshot(), domain.RoleOwner); verdict.Kind == service.VerdictAllow {
				persona = service.PersonaDemo
			}
			if err := chatFlow(ctx, reader, chatSvc, persona); err != nil {
				fmt.Printf("chat error: %v\n", err)
			}
		case "2":
			email := prompt(reader, "Email: ")
			password := prompt(reader, "Password: ")
			session, err := store.SignIn(ctx, email, password)
			switch {
			case errors.Is(err, service.ErrTooManyAttempts):
				fmt.Println("Too many attempts, try again later.")
			case err != nil:
				fmt.Println("Invalid email or password.")
			default:
				fmt.Printf("Welcome! Redirecting to %s\n", service.DefaultPath(session.Role))
			}
		case "3":
			email := prompt(reader, "Email: ")
			password := prompt(reader, "Password: ")
			role := prompt(reader, "Role [owner/customer]: ")
			session, err := store.SignUp(ctx, email, password, domain.Role(strings.ToLower(role)))
			var signupErr *service.SignupError
			if errors.As(err, &signupErr) {
				fmt.Printf("Sign up failed: %s\n", signupErr.Reason)
				continue
			}
			fmt.Printf("Account created. Redirecting to %s\n", service.DefaultPath(session.Role))
		case "4":
			store.SignOut(ctx)
			fmt.Println("Signed out.")
		case "5":
			return
		default:
			fmt.Println("Invalid option.")
		}
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// chatFlow monta una conversacion y la imprime a medida que cambia.
func chatFlow(ctx context.Context, reader *bufio.Reader, chatSvc *service.ChatService, persona service.Persona) error {
	conv, err := chatSvc.Mount(persona, "cli")
	if err != nil {
		return fmt.Errorf("mount conversation: %w", err)
	}

	fmt.Println("---- Chat (type 'exit' to leave) ----")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printConversation(conv)
	}()
	defer func() {
		_ = chatSvc.Unmount(conv.ID())
		wg.Wait()
	}()

	for {
		text, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		trimmed := strings.TrimSpace(text)
		if strings.EqualFold(trimmed, "exit") || strings.EqualFold(trimmed, "salir") {
			fmt.Println("Leaving chat...")
			return nil
		}
		if _, _, err := chatSvc.Submit(ctx, conv.ID(), strings.TrimRight(text, "\r\n")); err != nil {
			return err
		}
	}
}

// printConversation sigue la conversacion hasta que se cierra.
func printConversation(conv *service.Conversation) {
	var last int64
	composing := false
	for {
		changed := conv.Changed()
		for _, msg := range conv.Since(last) {
			label := "You"
			if msg.Speaker == domain.SpeakerAssistant {
				label = "Assistant"
			}
			fmt.Printf("[%s] %s > %s\n", msg.CreatedAt.Local().Format("15:04"), label, msg.Text)
			last = msg.ID
		}
		if now := conv.Composing(); now != composing {
			composing = now
			if composing {
				fmt.Println("Assistant is typing...")
			}
		}
		if conv.Closed() {
			return
		}
		<-changed
	}
}
