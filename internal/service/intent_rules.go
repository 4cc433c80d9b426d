package service

import "turbotalk/internal/domain"

// Persona identifica la superficie de chat y su juego de reglas.
type Persona string

const (
	PersonaCustomer Persona = "customer"
	PersonaDemo     Persona = "demo"
)

type seedMessage struct {
	speaker domain.Speaker
	text    string
}

// PersonaConfig agrupa el resolver y los mensajes iniciales de una persona.
type PersonaConfig struct {
	Resolver *IntentResolver
	seed     []seedMessage
}

const customerGreeting = "Hello! Welcome to our business! 👋 I'm your AI assistant and I'm here to help you with:\n\n• Service information & pricing\n• Booking appointments\n• Business hours & location\n• Answering any questions\n\nHow can I help you today?"

const customerFallback = "Thank you for reaching out! 😊 I'm here to help with:\n\n• Service information & pricing\n• Booking appointments\n• Business hours & location\n• Payment options\n• Cancellations & rescheduling\n\nWhat would you like to know? You can also call us at (555) 123-4567 for immediate assistance!"

var customerRules = []IntentRule{
	{
		Name:     "pricing",
		Triggers: []string{"price", "cost"},
		Response: "Here are our service prices:\n\n💇 BEAUTY & WELLNESS:\n• Hair Cut & Style: $45\n• Manicure & Pedicure: $35\n• Facial Treatment: $75\n• Massage Therapy: $85\n\n🍽️ RESTAURANT:\n• Private Dining: $150/table\n• Catering Services: $25/person\n• Chef's Special Menu: $65/person\n\n🚗 AUTO SERVICES:\n• Oil Change: $35\n• Full Inspection: $125\n• Tire Rotation: $45\n\n💪 FITNESS:\n• Personal Training: $75/session\n• Group Classes: $25/class\n• Monthly Membership: $89\n\nAll prices include consultation and premium service!",
	},
	{
		Name:     "booking",
		Triggers: []string{"book", "appointment", "schedule"},
		Response: "Perfect! I can help you book an appointment right now. 🗓️\n\nWhat service are you interested in?\n• Beauty & Wellness\n• Restaurant Reservations\n• Auto Services\n• Fitness Training\n\nOnce you tell me the service and preferred time, I'll confirm your booking instantly! You can also call us at (555) 123-4567 for immediate assistance.",
	},
	{
		Name:     "confirmation",
		Triggers: []string{"confirm", "yes", "okay"},
		Response: "🎉 BOOKING CONFIRMED! 🎉\n\nYour appointment has been successfully scheduled:\n\n📅 Date: Tomorrow at 3:00 PM\n⏰ Duration: 60 minutes\n📍 Location: 123 Business Street\n💰 Price: $45\n\n✅ You are booked!\n\nYou'll receive a confirmation SMS shortly. Need to reschedule? Just let me know!\n\nSee you tomorrow! 😊",
	},
	{
		Name:     "hours",
		Triggers: []string{"hours", "open", "time"},
		Response: "We're open 7 days a week! 🕒\n\n• Monday - Friday: 9:00 AM - 7:00 PM\n• Saturday: 8:00 AM - 6:00 PM\n• Sunday: 10:00 AM - 5:00 PM\n\nWalk-ins welcome based on availability! Peak hours are typically 2-5 PM on weekdays.",
	},
	{
		Name:     "location",
		Triggers: []string{"location", "address", "where"},
		Response: "You can find us at:\n\n📍 123 Business Street, Downtown\nCity, State 12345\n\n🅿️ Free parking available\n🚇 Metro stop: Downtown Center (2 min walk)\n\nWe're located in the main business district, easy to find with plenty of parking!",
	},
	{
		Name:     "cancellation",
		Triggers: []string{"cancel", "reschedule"},
		Response: "No problem! I can help you with that.\n\n• To cancel: No fees if cancelled 24+ hours ahead\n• To reschedule: I can find you a new time slot\n\nWhat would you prefer? Just let me know your booking reference or the service you had scheduled.",
	},
	{
		Name:     "services",
		Triggers: []string{"services", "what do you"},
		Response: "We offer services across multiple categories! 🌟\n\n💅 BEAUTY & WELLNESS:\n• Hair styling, nails, facials, massage\n\n🍽️ RESTAURANT:\n• Fine dining, catering, private events\n\n🚗 AUTO SERVICES:\n• Maintenance, repairs, inspections\n\n💪 FITNESS:\n• Personal training, group classes, memberships\n\nWhich category interests you? I can provide detailed information!",
	},
	{
		Name:     "payment",
		Triggers: []string{"payment", "pay"},
		Response: "We accept all major payment methods! 💳\n\n• Credit/Debit cards (Visa, MasterCard, Amex)\n• Digital payments (Apple Pay, Google Pay)\n• Cash\n• Buy now, pay later options\n\nPayment is due at time of service. We also offer package deals and memberships with discounts!",
	},
}

const demoGreeting = "Hello! I'm your business assistant. I can help customers with service information, booking appointments, and answering common questions. How can I help you today?"

const demoFallback = "Thank you for your question! For specific inquiries, please call us at (555) 123-4567 or visit our location. Our team will be happy to help you with personalized recommendations!"

var demoRules = []IntentRule{
	{
		Name:     "pricing",
		Triggers: []string{"price", "cost"},
		Response: "Here are our current prices:\n\n• Hair Cut & Style: $45\n• Manicure & Pedicure: $35\n• Facial Treatment: $75\n• Massage Therapy: $85\n\nAll prices include consultation and aftercare advice!",
	},
	{
		Name:     "booking",
		Triggers: []string{"book", "appointment"},
		Response: "I'd be happy to help you book an appointment! What service are you interested in and what day works best for you? You can also call us directly at (555) 123-4567.",
	},
	{
		Name:     "hours",
		Triggers: []string{"hours", "open"},
		Response: "We're open:\n\n• Monday - Friday: 9:00 AM - 7:00 PM\n• Saturday: 8:00 AM - 6:00 PM\n• Sunday: 10:00 AM - 5:00 PM\n\nWalk-ins welcome based on availability!",
	},
	{
		Name:     "location",
		Triggers: []string{"location", "address"},
		Response: "You can find us at:\n\n📍 123 Beauty Street, Downtown\nCity, State 12345\n\nWe're located right next to the main shopping center with plenty of parking available!",
	},
}

// CustomerIntentResolver es el juego de reglas del widget publico.
func CustomerIntentResolver() *IntentResolver {
	return mustIntentResolver(customerFallback, customerRules...)
}

// DemoIntentResolver es el juego de reglas de la demo del panel de owner.
func DemoIntentResolver() *IntentResolver {
	return mustIntentResolver(demoFallback, demoRules...)
}

// DefaultPersonas arma las dos personas. customer puede sobreescribir las reglas del widget.
func DefaultPersonas(customer *IntentResolver) map[Persona]PersonaConfig {
	if customer == nil {
		customer = CustomerIntentResolver()
	}
	return map[Persona]PersonaConfig{
		PersonaCustomer: {
			Resolver: customer,
			seed:     []seedMessage{{speaker: domain.SpeakerAssistant, text: customerGreeting}},
		},
		PersonaDemo: {
			Resolver: DemoIntentResolver(),
			seed: []seedMessage{
				{speaker: domain.SpeakerAssistant, text: demoGreeting},
				{speaker: domain.SpeakerUser, text: "What services do you offer?"},
				{speaker: domain.SpeakerAssistant, text: "We offer a variety of services including:\n\n• Hair Cut & Style ($45, 60 min)\n• Manicure & Pedicure ($35, 45 min)\n• Facial Treatment ($75, 90 min)\n• Massage Therapy ($85, 120 min)\n\nWould you like to book an appointment for any of these services?"},
			},
		},
	}
}
