package models

// MQTTConfig holds the MQTT event publisher configuration.
type MQTTConfig struct {
	Broker      string // e.g. tcp://192.168.0.10:1883
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
}

// MQTTResult holds the result of a publish.
type MQTTResult struct {
	Published bool
	Topic     string
	Error     error
}
