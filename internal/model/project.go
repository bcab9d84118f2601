package model

type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DefaultGroup stands for projects that belong to no group. It is never
// returned by the server.
var DefaultGroup = Group{ID: "", Name: "Default"}

func (g Group) IsDefault() bool {
	return g.ID == ""
}

type Project struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	URL          string        `json:"url"`
	GroupID      string        `json:"groupId,omitempty"`
	Jobs         []Job         `json:"jobs,omitempty"`
	LastPipeline *LastPipeline `json:"lastPipeline,omitempty"`
}

type Job struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Template    string     `json:"template,omitempty"`
	ProjectID   string     `json:"projectId"`
	Pipelines   []Pipeline `json:"pipelines,omitempty"`
}
