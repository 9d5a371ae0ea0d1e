package sfm

import (
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes clean reports to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	summaries     map[string]ReportSummary
	mu            sync.RWMutex
}

// NewPublisher creates a report publisher. MQTT_PUBLISH_PREFIX overrides
// prefix; with neither set the prefix is "sfmclean".
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	prefix = envOr("MQTT_PUBLISH_PREFIX", prefix)
	if prefix == "" {
		prefix = "sfmclean"
	}
	prefix = strings.TrimSuffix(prefix, "/")

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true, // late subscribers get the latest report
		summaries:     make(map[string]ReportSummary),
	}
}

// Prefix returns the topic prefix
func (p *Publisher) Prefix() string { return p.publishPrefix }

// PublishReport publishes the full report to {prefix}/{sceneID}/report and
// the summary list of all scenes to {prefix}/reports.
func (p *Publisher) PublishReport(r *CleanReport) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	p.mu.Lock()
	p.summaries[r.SceneID] = r.Summary()
	p.mu.Unlock()

	if err := p.publishIndividual(r); err != nil {
		log.Printf("[MQTT] error publishing report for %s: %v", r.SceneID, err)
		return err
	}
	if err := p.publishCombined(); err != nil {
		log.Printf("[MQTT] error publishing combined reports: %v", err)
		return err
	}
	return nil
}

func (p *Publisher) publishIndividual(r *CleanReport) error {
	topic := fmt.Sprintf("%s/%s/report", p.publishPrefix, r.SceneID)

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Printf("[MQTT] published report for %s: removed %d cameras, %d landmarks",
		r.SceneID, len(r.Result.RemovedCameras), len(r.Result.RemovedLandmarks))
	return nil
}

func (p *Publisher) publishCombined() error {
	summaries := p.Summaries()
	if len(summaries) == 0 {
		return nil
	}

	topic := fmt.Sprintf("%s/reports", p.publishPrefix)
	message := map[string]interface{}{
		"scenes":    summaries,
		"timestamp": time.Now().Unix(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling combined reports: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// Summaries returns the latest summary of every scene, ordered by scene id
func (p *Publisher) Summaries() []ReportSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ReportSummary, 0, len(p.summaries))
	for _, s := range p.summaries {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b ReportSummary) int { return strings.Compare(a.SceneID, b.SceneID) })
	return out
}

// ClearScene forgets a scene's summary
func (p *Publisher) ClearScene(sceneID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.summaries, sceneID)
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
