// services/sms_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"vesselwatch/utils"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSMSService sends owner SMS through Twilio with a per-number daily cap
type TwilioSMSService struct {
	client      *twilio.RestClient
	phoneNumber string
	dailyLimit  int

	mutex sync.Mutex
	usage map[string]smsUsage
}

type smsUsage struct {
	day   string
	count int
}

func NewTwilioSMSService(accountSID, authToken, phoneNumber string, dailyLimit int) *TwilioSMSService {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioSMSService{
		client:      client,
		phoneNumber: phoneNumber,
		dailyLimit:  dailyLimit,
		usage:       make(map[string]smsUsage),
	}
}

func (ss *TwilioSMSService) SendSMS(ctx context.Context, phone, message string) error {
	phone = normalizePhone(phone)
	if phone == "" {
		return fmt.Errorf("no phone number")
	}

	if err := ss.checkUsageLimit(phone, time.Now()); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(ss.phoneNumber)
	params.SetBody(message)

	resp, err := ss.client.Api.CreateMessage(params)
	if err != nil {
		return utils.NewNetworkError("failed to send SMS", err)
	}

	if resp.Sid != nil {
		logrus.Infof("SMS sent to %s (sid %s)", maskPhone(phone), *resp.Sid)
	}
	return nil
}

// checkUsageLimit counts the message against today's quota for the number
func (ss *TwilioSMSService) checkUsageLimit(phone string, now time.Time) error {
	if ss.dailyLimit <= 0 {
		return nil
	}

	ss.mutex.Lock()
	defer ss.mutex.Unlock()

	day := now.Format("2006-01-02")
	u := ss.usage[phone]
	if u.day != day {
		u = smsUsage{day: day}
	}
	if u.count >= ss.dailyLimit {
		return utils.NewServiceError(utils.ErrCodeRateLimit, fmt.Sprintf("daily SMS limit exceeded (%d/%d)", u.count, ss.dailyLimit))
	}
	u.count++
	ss.usage[phone] = u
	return nil
}

// normalizePhone converts local 09XXXXXXXXX numbers to E.164
func normalizePhone(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	if strings.HasPrefix(phone, "09") && len(phone) == 11 {
		return "+63" + phone[1:]
	}
	if strings.HasPrefix(phone, "63") && len(phone) == 12 {
		return "+" + phone
	}
	return phone
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
