package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// SendFunc delivers a raw RFC 822 message. It matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
	send SendFunc
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
		send: smtp.SendMail,
	}
}

// WithSender replaces the SMTP transport, mainly for tests.
func (s *Service) WithSender(send SendFunc) *Service {
	s.send = send
	return s
}

// SendOrderConfirmation sends the buyer's order confirmation.
func (s *Service) SendOrderConfirmation(to string, order OrderMail) error {
	subject := fmt.Sprintf("Order confirmation #%s", order.OrderNumber)
	body, err := BuildOrderConfirmationBody(order)
	if err != nil {
		return err
	}
	return s.deliver(to, subject, body)
}

// SendNewOrderNotice tells the shop about a new order, including customer
// contact details and a WhatsApp link to reach them.
func (s *Service) SendNewOrderNotice(to string, order OrderMail) error {
	subject := fmt.Sprintf("New order #%s - %s", order.OrderNumber, order.CustomerName)
	body, err := BuildNewOrderNoticeBody(order)
	if err != nil {
		return err
	}
	return s.deliver(to, subject, body)
}

func (s *Service) deliver(to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("invalid header value")
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.send(addr, nil, s.from, []string{to}, []byte(msg))
}
