// Package config loads the wsdtool configuration file and builds the
// per-run Session.
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/wsdtool/config.yaml or $HOME/.config/wsdtool/config.yaml
//   - macOS: $HOME/.config/wsdtool/config.yaml
//   - Windows: %LOCALAPPDATA%\wsdtool\config.yaml
//
// A missing file is not an error; Load returns the defaults. Values left
// out of the file are filled with defaults too. Command-line flags and the
// WSD_CACHE_PATH and WSD_LOG_LEVEL environment variables take precedence
// over the file.
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sess, err := config.NewSession(cfg, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := soapclient.New(transport.NewClient(sess.Timeouts.Request), sess.ID)
package config
