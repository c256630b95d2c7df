package model

// ProgramStats is the delivered/opened rollup for one program.
type ProgramStats struct {
	Delivered int `json:"delivered"`
	Opened    int `json:"opened"`
}

// StatsWindow is a derived rollup over the history log for a day window.
// Never stored; computed on demand.
type StatsWindow struct {
	Days           int                     `json:"days"`
	TotalDelivered int                     `json:"total_delivered"`
	TotalOpened    int                     `json:"total_opened"`
	OpenRate       float64                 `json:"open_rate"`
	PerProgram     map[string]ProgramStats `json:"per_program"`
}
