package core

type (
	SMSMessage struct {
		To   string // E.164 phone number
		Body string
	}

	// SMSService delivers text messages. Delivery is best-effort and never
	// required for correctness of the flow that triggered it.
	SMSService interface {
		// SendMessages sends messages concurrently.
		SendMessages(messages ...*SMSMessage)
	}
)
