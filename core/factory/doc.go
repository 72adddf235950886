// Package factory provides a small generic registry used to build pluggable
// components (metrics sinks, notifiers, predictors) from configuration. A
// component is described by a type string and a map of raw settings that the
// factory decodes into its own typed struct.
//
//	reg := factory.NewRegistry[notify.Publisher]()
//	reg.Register("mqtt", func(conf map[string]any) (notify.Publisher, error) {
//	    var c mqtt.Config
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return mqtt.New(c)
//	})
package factory
