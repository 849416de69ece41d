package app

const (
	Name           = "qlsend"
	SourceURL      = "https://git.skobk.in/skobkin/qlsend"
	ConfigFilename = "config.yaml"
	DBFilename     = "history.db"
	LogFilename    = "qlsend.log"
	MetricsFile    = "qlsend.prom"
)
