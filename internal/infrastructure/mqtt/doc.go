// Package mqtt provides the MQTT client the bridge uses to talk to the host
// automation platform.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - Reading a retained message once (WaitRetained) for state restore
//
// # Topic layout
//
//	aurabridge/state/{bridge}/{control}     retained control state
//	aurabridge/command/{bridge}/{control}   commands from the host
//	aurabridge/health/{bridge}              retained bridge health
//	aurabridge/status/{client_id}           online/offline + LWT
//	aurabridge/external/{entity}            mirrored entity state (default)
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Credentials should come from AURABRIDGE_MQTT_USERNAME/PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands("living-room"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("command: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
