package smssvc

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/newedu/guardian/core"
)

var (
	// SentMessages collects every message sent through a console service.
	// Tests inspect it to assert on delivered codes.
	SentMessages = make([]core.SMSMessage, 0)
	mu           sync.Mutex
)

type consoleService struct {
	sender        string
	disableOutput bool
}

var _ core.SMSService = (*consoleService)(nil)

// NewConsoleService returns an SMSService that prints messages to the
// standard logger instead of delivering them. Used in local development.
func NewConsoleService(conf *core.Config) core.SMSService {
	return &consoleService{sender: conf.SMS.Sender}
}

func (svc consoleService) SendMessages(messages ...*core.SMSMessage) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

func (svc consoleService) sendMessage(msg *core.SMSMessage) {
	if msg.To == "" || msg.Body == "" {
		return
	}
	if !svc.disableOutput {
		log.Println(fmt.Sprintf("SMS %s -> %s (%s): %s", svc.sender, msg.To, time.Now().Format(time.RFC1123Z), msg.Body))
	}
	mu.Lock()
	SentMessages = append(SentMessages, *msg)
	mu.Unlock()
}

type consoleServiceMock struct {
	consoleService
}

// NewConsoleServiceMock is a synchronous, silent console service for tests.
func NewConsoleServiceMock(conf *core.Config) core.SMSService {
	return &consoleServiceMock{
		consoleService: consoleService{sender: conf.SMS.Sender, disableOutput: true},
	}
}

func (svc *consoleServiceMock) SendMessages(messages ...*core.SMSMessage) {
	for _, msg := range messages {
		// run synchronously
		svc.sendMessage(msg)
	}
}

// ClearSentMessages resets the test outbox.
func ClearSentMessages() {
	mu.Lock()
	SentMessages = SentMessages[:0]
	mu.Unlock()
}
