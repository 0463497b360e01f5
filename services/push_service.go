package services

import (
	"context"
	"fmt"
	"vesselwatch/utils"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// FCMPushService delivers push notifications through Firebase Cloud Messaging
type FCMPushService struct {
	client *messaging.Client
}

func NewFCMPushService(ctx context.Context, credentialsFile string) (*FCMPushService, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize FCM client: %w", err)
	}

	return &FCMPushService{client: client}, nil
}

func (ps *FCMPushService) SendTopic(ctx context.Context, topic, title, body string, data map[string]string) error {
	return ps.send(ctx, &messaging.Message{
		Topic:        topic,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
		Android:      androidAlert(),
	})
}

func (ps *FCMPushService) SendToDevice(ctx context.Context, token, title, body string, data map[string]string) error {
	return ps.send(ctx, &messaging.Message{
		Token:        token,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
		Android:      androidAlert(),
	})
}

func (ps *FCMPushService) send(ctx context.Context, message *messaging.Message) error {
	id, err := ps.client.Send(ctx, message)
	if err != nil {
		return utils.WrapError(err, utils.ErrCodeExternalNotify, "failed to send push notification")
	}
	logrus.Debugf("Push notification sent: %s", id)
	return nil
}

func androidAlert() *messaging.AndroidConfig {
	return &messaging.AndroidConfig{
		Priority: "high",
		Notification: &messaging.AndroidNotification{
			Sound: "default",
			Icon:  "ic_notification",
			Color: "#D32F2F",
		},
	}
}
