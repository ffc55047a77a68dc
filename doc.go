// Package relaymq provides the Go client SDK for relaymq, a pub/sub
// messaging service.
//
// Message payloads can be sealed end to end with a password-derived AES
// envelope (GCM or CBC). A device holds RSA key pairs in a key store and
// uses them to receive secrets, such as its TLS client certificate, from
// the relaymq config service: each secret arrives wrapped for the device's
// public key and is opened locally.
//
// Basic usage:
//
//	client, err := relaymq.New(ctx,
//	    relaymq.WithEncryption(relaymq.DefaultDerivationParams(), "GCM", "NoPadding", password),
//	    relaymq.WithConfigService("https://config.example.com", apiKey),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Register the device key pair, then fetch its secrets
//	if _, err := client.CreateKeyPair(ctx, "device"); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := client.Provision(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Publish a sealed payload
//	id, err := client.Publish(ctx, "telemetry", []byte("hello"))
package relaymq
