package smssvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newedu/guardian/core"
)

type gatewayService struct {
	url    string
	token  string
	sender string
	client *http.Client
	logger core.Logger
}

var _ core.SMSService = (*gatewayService)(nil)

// NewGatewayService returns an SMSService backed by the carrier aggregator's
// HTTP API configured in conf.SMS.
func NewGatewayService(logger core.Logger, conf *core.Config) *gatewayService {
	return &gatewayService{
		url:    conf.SMS.GatewayURL,
		token:  conf.SMS.GatewayToken,
		sender: conf.SMS.Sender,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (svc gatewayService) SendMessages(messages ...*core.SMSMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if msg.To != "" && msg.Body != "" {
				svc.send(*msg)
			}
		}()
	}
}

type gatewayPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

func (svc gatewayService) send(msg core.SMSMessage) {
	body, err := json.Marshal(gatewayPayload{From: svc.sender, To: msg.To, Message: msg.Body})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("encoding sms payload: %v", err), err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, svc.url, bytes.NewReader(body))
	if err != nil {
		svc.logger.Error(fmt.Sprintf("building sms request: %v", err), err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+svc.token)

	res, err := svc.client.Do(req)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending sms: %v", err), err)
		return
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending sms - status: %d", res.StatusCode))
	}
}
