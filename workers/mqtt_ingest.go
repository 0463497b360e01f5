package workers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"vesselwatch/interfaces"
	"vesselwatch/models"
	"vesselwatch/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const DefaultMQTTTopic = "vesselwatch/trackers/+/position"

// MQTTIngestWorker feeds position reports published by the on-board
// trackers into the tracker pool. The tracker ID comes from the topic
// segment matched by the wildcard unless the payload names one.
type MQTTIngestWorker struct {
	ingestor interfaces.PositionIngestor
	config   MQTTIngestConfig
	client   mqtt.Client

	isRunning bool
	mutex     sync.Mutex

	stats      MQTTIngestStats
	statsMutex sync.RWMutex
}

type MQTTIngestConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	QoS            byte
	ConnectTimeout time.Duration
}

type MQTTIngestStats struct {
	Received      int64     `json:"received"`
	Submitted     int64     `json:"submitted"`
	Malformed     int64     `json:"malformed"`
	Rejected      int64     `json:"rejected"`
	Connected     bool      `json:"connected"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

type mqttPosition struct {
	TrackerID        string     `json:"trackerId"`
	Latitude         *float64   `json:"latitude"`
	Longitude        *float64   `json:"longitude"`
	Timestamp        *time.Time `json:"timestamp"`
	UnixTime         int64      `json:"ts"`
	ConnectivityHint string     `json:"connectivityHint"`
}

func NewMQTTIngestWorker(ingestor interfaces.PositionIngestor, config MQTTIngestConfig) *MQTTIngestWorker {
	if config.Topic == "" {
		config.Topic = DefaultMQTTTopic
	}
	if config.ClientID == "" {
		config.ClientID = "vesselwatch-" + utils.GenerateShortID()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	return &MQTTIngestWorker{ingestor: ingestor, config: config}
}

func (mw *MQTTIngestWorker) Start() error {
	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	if mw.isRunning {
		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(mw.config.BrokerURL).
		SetClientID(mw.config.ClientID).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(mw.config.ConnectTimeout).
		SetKeepAlive(30 * time.Second).
		SetOrderMatters(true).
		SetOnConnectHandler(mw.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			mw.setConnected(false)
			logrus.Warnf("MQTT connection lost: %v", err)
		})
	if mw.config.Username != "" {
		opts.SetUsername(mw.config.Username).SetPassword(mw.config.Password)
	}

	mw.client = mqtt.NewClient(opts)
	token := mw.client.Connect()
	if !token.WaitTimeout(mw.config.ConnectTimeout) {
		// SetConnectRetry keeps trying in the background
		logrus.Warnf("MQTT broker %s not reachable yet, retrying in background", mw.config.BrokerURL)
	} else if err := token.Error(); err != nil {
		return utils.NewNetworkError("failed to connect to MQTT broker", err)
	}

	mw.isRunning = true
	logrus.Infof("MQTT ingest started on %s (%s)", mw.config.BrokerURL, mw.config.Topic)
	return nil
}

// onConnect (re)subscribes; paho calls it after every reconnect
func (mw *MQTTIngestWorker) onConnect(c mqtt.Client) {
	mw.setConnected(true)

	token := c.Subscribe(mw.config.Topic, mw.config.QoS, mw.handleMessage)
	if token.WaitTimeout(mw.config.ConnectTimeout) && token.Error() != nil {
		logrus.Errorf("Failed to subscribe to %s: %v", mw.config.Topic, token.Error())
		return
	}
	logrus.Infof("Subscribed to %s", mw.config.Topic)
}

func (mw *MQTTIngestWorker) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	mw.statsMutex.Lock()
	mw.stats.Received++
	mw.stats.LastMessageAt = time.Now()
	mw.statsMutex.Unlock()

	sample, err := ParseMQTTPosition(msg.Topic(), msg.Payload())
	if err != nil {
		mw.statsMutex.Lock()
		mw.stats.Malformed++
		mw.statsMutex.Unlock()
		logrus.Debugf("Discarding MQTT message on %s: %v", msg.Topic(), err)
		return
	}

	if err := mw.ingestor.Submit(sample); err != nil {
		mw.statsMutex.Lock()
		mw.stats.Rejected++
		mw.statsMutex.Unlock()
		logrus.Warnf("MQTT sample for %s rejected: %v", sample.TrackerID, err)
		return
	}

	mw.statsMutex.Lock()
	mw.stats.Submitted++
	mw.statsMutex.Unlock()
}

var trackerIDValidation = utils.NewValidationService()

type mqttTrackerRef struct {
	TrackerID string `validate:"required,tracker_id"`
}

// ParseMQTTPosition decodes a tracker payload. Topics look like
// vesselwatch/trackers/<trackerId>/position.
func ParseMQTTPosition(topic string, payload []byte) (models.PositionSample, error) {
	var p mqttPosition
	if err := json.Unmarshal(payload, &p); err != nil {
		return models.PositionSample{}, fmt.Errorf("invalid payload: %w", err)
	}
	if p.Latitude == nil || p.Longitude == nil {
		return models.PositionSample{}, errors.New("latitude and longitude are required")
	}

	trackerID := strings.TrimSpace(p.TrackerID)
	if trackerID == "" {
		parts := strings.Split(topic, "/")
		if len(parts) >= 2 {
			trackerID = parts[len(parts)-2]
		}
	}
	if errs := trackerIDValidation.ValidateStruct(mqttTrackerRef{TrackerID: trackerID}); len(errs) > 0 {
		return models.PositionSample{}, fmt.Errorf("tracker id %q: %s", trackerID, errs[0].Message)
	}

	sample := models.PositionSample{
		TrackerID:        trackerID,
		Latitude:         *p.Latitude,
		Longitude:        *p.Longitude,
		ConnectivityHint: models.ConnectivityStatus(p.ConnectivityHint),
		Source:           "mqtt",
	}
	switch {
	case p.Timestamp != nil:
		sample.Timestamp = p.Timestamp.UTC()
	case p.UnixTime > 0:
		sample.Timestamp = time.Unix(p.UnixTime, 0).UTC()
	}
	return sample, nil
}

func (mw *MQTTIngestWorker) setConnected(connected bool) {
	mw.statsMutex.Lock()
	mw.stats.Connected = connected
	mw.statsMutex.Unlock()
}

func (mw *MQTTIngestWorker) Stop() error {
	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	if !mw.isRunning {
		return nil
	}

	mw.client.Disconnect(250)
	mw.isRunning = false
	mw.setConnected(false)

	logrus.Info("MQTT ingest stopped")
	return nil
}

func (mw *MQTTIngestWorker) GetStats() MQTTIngestStats {
	mw.statsMutex.RLock()
	defer mw.statsMutex.RUnlock()
	return mw.stats
}
