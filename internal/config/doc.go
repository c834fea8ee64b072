// Package config loads server and client configuration.
//
// Server configuration starts from Default, is overlaid by a YAML file and then
// by RFCONTROL_* environment variables, and is validated before use. Watch
// reloads the file when it changes. Client configuration for rfctl is handled
// by viper with RFCTL_* environment variables.
package config
