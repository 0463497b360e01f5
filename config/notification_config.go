package config

import (
	"context"
	"vesselwatch/interfaces"
	"vesselwatch/services"

	"github.com/sirupsen/logrus"
)

// InitOwnerNotifier builds the SMS and push channels used to reach vessel
// owners. It returns nil when neither channel is configured.
func InitOwnerNotifier(ctx context.Context, cfg *Config) interfaces.OwnerNotifier {
	var sms interfaces.SMSService
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioPhoneNumber != "" {
		sms = services.NewTwilioSMSService(
			cfg.TwilioAccountSID,
			cfg.TwilioAuthToken,
			cfg.TwilioPhoneNumber,
			cfg.SMSDailyLimit,
		)
		logrus.Info("Owner SMS enabled (Twilio)")
	} else {
		logrus.Warn("Twilio credentials not configured, owner SMS disabled")
	}

	var push interfaces.PushService
	if cfg.FirebaseCredentials != "" {
		fcm, err := services.NewFCMPushService(ctx, cfg.FirebaseCredentials)
		if err != nil {
			logrus.Errorf("Failed to initialize push notifications: %v", err)
		} else {
			push = fcm
			logrus.Infof("Push notifications enabled (topic %s)", cfg.PushTopic)
		}
	}

	if sms == nil && push == nil {
		return nil
	}
	return services.NewOwnerAlertService(sms, push, cfg.PushTopic)
}
