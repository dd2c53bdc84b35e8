package config

const (
	DefaultNetwork            = "mainnet"
	DefaultDataDir            = "/vero/data"
	DefaultGasLimit           = uint64(36000000)
	DefaultBuilderBoostFactor = uint64(90)
	DefaultMetricsAddress     = "0.0.0.0"
	DefaultMetricsPort        = 8000
	DefaultKeymanagerAddress  = "localhost"
	DefaultKeymanagerPort     = 8001
	DefaultLogLevel           = "info"
)
