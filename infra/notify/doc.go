// Package notify provides the MQTT and NATS transports for core/notify.
//
// Both publishers register themselves in the notify publisher registry
// under "mqtt" and "nats". Notifications are JSON encoded and routed by
// hospital and kind:
//
//	mqtt: <prefix>/<hospital_id>/<kind>
//	nats: <prefix>.<hospital_id>.<kind>
package notify
