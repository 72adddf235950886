// Package notify turns dispatch events into notifications for external
// consumers such as ward displays and paging systems. Transports (MQTT, NATS)
// live in infra/notify and register themselves in the publisher registry.
package notify
