package ticket

import "freeda-support/src/contracts"

// StatusInfo describes a status for public views.
type StatusInfo struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color"`
}

var statusInfo = map[contracts.Status]StatusInfo{
	contracts.StatusNew:        {Label: "Nouveau", Description: "En attente...", Color: "blue"},
	contracts.StatusInProgress: {Label: "En cours", Description: "Traitement en cours...", Color: "orange"},
	contracts.StatusClosed:     {Label: "Résolu", Description: "Terminé.", Color: "green"},
}

var statusLabels = map[contracts.Status]string{
	contracts.StatusNew:        "Nouveau - En attente",
	contracts.StatusInProgress: "En cours - Prise en charge",
	contracts.StatusClosed:     "Résolu",
}

// Info returns the badge description of a status. Unknown statuses are
// shown as-is in gray.
func Info(s contracts.Status) StatusInfo {
	if info, ok := statusInfo[s]; ok {
		return info
	}
	return StatusInfo{Label: string(s), Color: "gray"}
}

// Label returns the long public label of a status.
func Label(s contracts.Status) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}
