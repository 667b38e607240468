package dongle

// ConnectionParams are GAP connection parameters. Intervals and the
// supervision timeout are in milliseconds, as the driver reports them.
type ConnectionParams struct {
	MinConnInterval float64 `json:"minConnectionInterval"`
	MaxConnInterval float64 `json:"maxConnectionInterval"`
	SlaveLatency    int     `json:"slaveLatency"`
	ConnSupTimeout  float64 `json:"connectionSupervisionTimeout"`
}

// ScanParams control the scan used while dialing a connection. Interval
// and window are in milliseconds, timeout in seconds.
type ScanParams struct {
	Active   bool    `json:"active"`
	Interval float64 `json:"interval"`
	Window   float64 `json:"window"`
	Timeout  int     `json:"timeout"`
}

// ConnectOptions bundle the parameters of a connect command.
type ConnectOptions struct {
	ScanParams ScanParams
	ConnParams ConnectionParams
}

// OpenOptions are the serial/driver options of the adapter open command.
type OpenOptions struct {
	BaudRate      int
	Parity        string
	FlowControl   string
	EventInterval int
	LogLevel      string
	EnableBLE     bool
}
