package services

import (
	"context"
	"errors"
	"fmt"
	"vesselwatch/interfaces"
	"vesselwatch/models"
)

// OwnerAlertService tells a vessel's registered owner, and the coast watch
// push topic, that the vessel is idling inside a restricted area.
type OwnerAlertService struct {
	sms   interfaces.SMSService
	push  interfaces.PushService
	topic string
}

func NewOwnerAlertService(sms interfaces.SMSService, push interfaces.PushService, topic string) *OwnerAlertService {
	return &OwnerAlertService{sms: sms, push: push, topic: topic}
}

func (oas *OwnerAlertService) NotifyViolation(ctx context.Context, record models.NotificationRecord, vessel *models.VesselInfo) error {
	var errs []error

	if oas.sms != nil && vessel != nil && vessel.OwnerContact != "" {
		if err := oas.sms.SendSMS(ctx, vessel.OwnerContact, ownerSMSBody(record, vessel)); err != nil {
			errs = append(errs, fmt.Errorf("sms: %w", err))
		}
	}

	if oas.push != nil {
		title := "Boundary violation " + record.ReportNumber
		data := map[string]string{
			"notificationId": record.ID,
			"reportNumber":   record.ReportNumber,
			"trackerId":      record.TrackerID,
			"toArea":         record.ToArea,
		}
		if oas.topic != "" {
			if err := oas.push.SendTopic(ctx, oas.topic, title, record.Message, data); err != nil {
				errs = append(errs, fmt.Errorf("push topic: %w", err))
			}
		}
		if vessel != nil && vessel.OwnerDeviceToken != "" {
			if err := oas.push.SendToDevice(ctx, vessel.OwnerDeviceToken, title, record.Message, data); err != nil {
				errs = append(errs, fmt.Errorf("push device: %w", err))
			}
		}
	}

	return errors.Join(errs...)
}

func ownerSMSBody(record models.NotificationRecord, vessel *models.VesselInfo) string {
	home := vessel.HomeArea
	if home == "" {
		home = record.FromArea
	}
	return fmt.Sprintf(
		"Hi %s, your boat %s (MFBR %s) registered in %s has been stationary inside %s for %.0f minutes. "+
			"Please move out of the restricted area. Ref %s",
		vessel.OwnerName, vessel.BoatName, vessel.MFBRNumber, home,
		record.ToArea, record.DwellMinutes, record.ReportNumber,
	)
}
