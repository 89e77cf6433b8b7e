package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TypeQueue = "queue"
	TypeHTTP  = "http"

	QueueProviderAWSSQS = "aws-sqs"
	QueueProviderAWSSNS = "aws-sns"
	QueueProviderGCP    = "gcp"

	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
)

type fileLayout struct {
	Publishers []PublisherConfig `json:"publishers" yaml:"publishers"`
}

// PublisherConfig is one sink declared in the publishers file.
type PublisherConfig struct {
	ID      string                `json:"id" yaml:"id"`
	Type    string                `json:"type" yaml:"type"`
	Enabled *bool                 `json:"enabled" yaml:"enabled"`
	Sources []string              `json:"sources" yaml:"sources"`
	Queue   *QueuePublisherConfig `json:"queue" yaml:"queue"`
	HTTP    *HTTPPublisherConfig  `json:"http" yaml:"http"`
}

// QueuePublisherConfig selects a cloud queue provider.
type QueuePublisherConfig struct {
	Provider string                 `json:"provider" yaml:"provider"`
	AWS      *AWSSQSPublisherConfig `json:"aws" yaml:"aws"`
	SNS      *AWSSNSPublisherConfig `json:"sns" yaml:"sns"`
	GCP      *GCPQueueConfig        `json:"gcp" yaml:"gcp"`
}

// AWSCredentials are optional static keys. When both are empty the default AWS chain is used.
type AWSCredentials struct {
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

type AWSSQSPublisherConfig struct {
	QueueURL       string `json:"uri" yaml:"uri"`
	Region         string `json:"region" yaml:"region"`
	AWSCredentials `yaml:",inline"`
}

type AWSSNSPublisherConfig struct {
	TopicARN       string `json:"topic_arn" yaml:"topic_arn"`
	Region         string `json:"region" yaml:"region"`
	AWSCredentials `yaml:",inline"`
}

// GCPQueueConfig holds the Pub/Sub topic settings. Ordered publishes use the source id as
// ordering key.
type GCPQueueConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
	Ordered         bool   `json:"ordered" yaml:"ordered"`
}

// HTTPPublisherConfig describes a webhook sink.
type HTTPPublisherConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// ConfigSet is the validated content of a publishers file.
type ConfigSet struct {
	publishers []PublisherConfig
}

// LoadConfigs reads a YAML or JSON publishers file, expanding ${ENV} references first.
func LoadConfigs(path string) (*ConfigSet, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}
	return ParseConfigs([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
}

// ParseConfigs decodes and validates publishers file content. ext picks the decoder; an empty
// ext tries YAML then JSON.
func ParseConfigs(data []byte, ext string) (*ConfigSet, error) {
	layout, err := decodeLayout(data, ext)
	if err != nil {
		return nil, err
	}
	if len(layout.Publishers) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	set := &ConfigSet{publishers: make([]PublisherConfig, 0, len(layout.Publishers))}
	seen := make(map[string]struct{}, len(layout.Publishers))
	for i, pc := range layout.Publishers {
		pc = normalize(pc)
		if err := validate(pc); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, dup := seen[pc.ID]; dup {
			return nil, fmt.Errorf("duplicate publisher id %q", pc.ID)
		}
		seen[pc.ID] = struct{}{}
		set.publishers = append(set.publishers, pc)
	}
	return set, nil
}

func decodeLayout(data []byte, ext string) (fileLayout, error) {
	var decoders []func([]byte, any) error
	switch strings.ToLower(strings.TrimSpace(ext)) {
	case ".yaml", ".yml":
		decoders = append(decoders, yaml.Unmarshal)
	case ".json":
		decoders = append(decoders, json.Unmarshal)
	case "":
		decoders = append(decoders, yaml.Unmarshal, json.Unmarshal)
	default:
		return fileLayout{}, fmt.Errorf("publishers file extension %q not supported", ext)
	}

	var lastErr error
	for _, decode := range decoders {
		var layout fileLayout
		if err := decode(data, &layout); err != nil {
			lastErr = err
			continue
		}
		return layout, nil
	}
	return fileLayout{}, fmt.Errorf("decode publishers file: %w", lastErr)
}

func normalize(pc PublisherConfig) PublisherConfig {
	pc.ID = strings.TrimSpace(pc.ID)
	pc.Type = strings.ToLower(strings.TrimSpace(pc.Type))
	if pc.Enabled == nil {
		on := true
		pc.Enabled = &on
	}

	var sources []string
	for _, s := range pc.Sources {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" && !slices.Contains(sources, s) {
			sources = append(sources, s)
		}
	}
	pc.Sources = sources

	if q := pc.Queue; q != nil {
		qc := *q
		qc.Provider = strings.ToLower(strings.TrimSpace(qc.Provider))
		if qc.AWS != nil {
			a := *qc.AWS
			a.QueueURL = strings.TrimSpace(a.QueueURL)
			a.Region = strings.TrimSpace(a.Region)
			a.AWSCredentials = a.AWSCredentials.trimmed()
			qc.AWS = &a
		}
		if qc.SNS != nil {
			s := *qc.SNS
			s.TopicARN = strings.TrimSpace(s.TopicARN)
			s.Region = strings.TrimSpace(s.Region)
			s.AWSCredentials = s.AWSCredentials.trimmed()
			qc.SNS = &s
		}
		if qc.GCP != nil {
			g := *qc.GCP
			g.ProjectID = strings.TrimSpace(g.ProjectID)
			g.Topic = strings.TrimSpace(g.Topic)
			g.CredentialsFile = strings.TrimSpace(g.CredentialsFile)
			qc.GCP = &g
		}
		pc.Queue = &qc
	}

	if h := pc.HTTP; h != nil {
		hc := *h
		hc.URL = strings.TrimSpace(hc.URL)
		hc.Method = strings.ToUpper(strings.TrimSpace(hc.Method))
		if hc.Method == "" {
			hc.Method = httpDefaultMethod
		}
		if hc.TimeoutSeconds <= 0 {
			hc.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		hc.Headers = cleanHeaders(hc.Headers)
		pc.HTTP = &hc
	}
	return pc
}

func (c AWSCredentials) trimmed() AWSCredentials {
	return AWSCredentials{
		AccessKeyID:     strings.TrimSpace(c.AccessKeyID),
		SecretAccessKey: strings.TrimSpace(c.SecretAccessKey),
	}
}

// static reports whether explicit keys were configured.
func (c AWSCredentials) static() bool {
	return c.AccessKeyID != "" || c.SecretAccessKey != ""
}

func cleanHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func validate(pc PublisherConfig) error {
	if pc.ID == "" {
		return errors.New("id is required")
	}
	switch pc.Type {
	case "":
		return fmt.Errorf("type is required for publisher %q", pc.ID)
	case TypeHTTP:
		if pc.HTTP == nil || pc.HTTP.URL == "" {
			return fmt.Errorf("http.url is required for publisher %q", pc.ID)
		}
		return nil
	case TypeQueue:
		return validateQueue(pc.ID, pc.Queue)
	default:
		return fmt.Errorf("type %q not supported for publisher %q", pc.Type, pc.ID)
	}
}

func validateQueue(id string, q *QueuePublisherConfig) error {
	if q == nil {
		return fmt.Errorf("queue config required for publisher %q", id)
	}

	var missing []string
	switch q.Provider {
	case QueueProviderAWSSQS:
		if q.AWS == nil {
			return fmt.Errorf("queue.aws config required for publisher %q", id)
		}
		missing = requireFields(map[string]string{"uri": q.AWS.QueueURL, "region": q.AWS.Region})
		missing = append(missing, credentialGaps(q.AWS.AWSCredentials)...)
	case QueueProviderAWSSNS:
		if q.SNS == nil {
			return fmt.Errorf("queue.sns config required for publisher %q", id)
		}
		missing = requireFields(map[string]string{"topic_arn": q.SNS.TopicARN, "region": q.SNS.Region})
		missing = append(missing, credentialGaps(q.SNS.AWSCredentials)...)
	case QueueProviderGCP:
		if q.GCP == nil {
			return fmt.Errorf("queue.gcp config required for publisher %q", id)
		}
		missing = requireFields(map[string]string{"project_id": q.GCP.ProjectID, "topic": q.GCP.Topic})
	default:
		return fmt.Errorf("queue provider %q not supported for publisher %q", q.Provider, id)
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("publisher %q missing %s", id, strings.Join(missing, ", "))
	}
	return nil
}

func requireFields(fields map[string]string) []string {
	var missing []string
	for name, v := range fields {
		if v == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// credentialGaps flags half-configured static keys.
func credentialGaps(c AWSCredentials) []string {
	switch {
	case !c.static():
		return nil
	case c.AccessKeyID == "":
		return []string{"access_key_id"}
	case c.SecretAccessKey == "":
		return []string{"secret_access_key"}
	}
	return nil
}

// All returns every configured publisher.
func (s *ConfigSet) All() []PublisherConfig {
	if s == nil {
		return nil
	}
	return slices.Clone(s.publishers)
}

// Enabled returns the publishers whose enabled flag is unset or true.
func (s *ConfigSet) Enabled() []PublisherConfig {
	var out []PublisherConfig
	for _, pc := range s.All() {
		if pc.EnabledValue() {
			out = append(out, pc)
		}
	}
	return out
}

// EnabledValue returns the enabled flag, defaulting to true.
func (pc PublisherConfig) EnabledValue() bool {
	return pc.Enabled == nil || *pc.Enabled
}

// Accepts reports whether events from sourceID go to this publisher. No sources means all.
func (pc PublisherConfig) Accepts(sourceID string) bool {
	return len(pc.Sources) == 0 || slices.Contains(pc.Sources, strings.ToLower(sourceID))
}
