package notify

import (
	"github.com/kilianp07/medqueue/core/factory"
	corenotify "github.com/kilianp07/medqueue/core/notify"
)

// init registers the built-in transports.
func init() {
	_ = corenotify.RegisterPublisher("mqtt", func(conf map[string]any) (corenotify.Publisher, error) {
		var c MQTTConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewMQTTPublisher(c)
	})
	_ = corenotify.RegisterPublisher("nats", func(conf map[string]any) (corenotify.Publisher, error) {
		var c NATSConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewNATSPublisher(c)
	})
}
