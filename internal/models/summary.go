package models

// Overview is the SOC dashboard snapshot. Alerts are classifications.
type Overview struct {
	TotalAlerts       int                    `json:"total_alerts"`
	CriticalAlerts    int                    `json:"critical_alerts"`
	TotalIncidents    int                    `json:"total_incidents"`
	OpenIncidents     int                    `json:"open_incidents"`
	AlertsBySeverity  map[Severity]int       `json:"alerts_by_severity"`
	IncidentsByStatus map[IncidentStatus]int `json:"incidents_by_status"`
}
