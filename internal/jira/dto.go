package jira

import (
	"encoding/json"
)

// SearchResponse is the top-level container for Jira search and sprint issue results.
type SearchResponse struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []IssueDTO `json:"issues"`
}

// PagedResponse is the agile API envelope for boards and sprints.
type PagedResponse[T any] struct {
	StartAt    int  `json:"startAt"`
	MaxResults int  `json:"maxResults"`
	IsLast     bool `json:"isLast"`
	Values     []T  `json:"values"`
}

// IssueDTO represents a single issue in the Jira search response.
type IssueDTO struct {
	Key    string    `json:"key"`
	Fields FieldsDTO `json:"fields"`
}

// FieldsDTO contains the specific fields we care about.
// Custom holds every raw field so the story point field can be configured.
type FieldsDTO struct {
	Summary   string `json:"summary"`
	IssueType *struct {
		Name    string `json:"name"`
		Subtask bool   `json:"subtask"`
	} `json:"issuetype"`
	Status *struct {
		Name string `json:"name"`
	} `json:"status"`
	Assignee *UserDTO `json:"assignee"`
	Priority *struct {
		Name string `json:"name"`
	} `json:"priority"`
	Labels         []string `json:"labels"`
	Created        string   `json:"created"`
	ResolutionDate string   `json:"resolutiondate"`

	Custom map[string]json.RawMessage `json:"-"`
}

func (f *FieldsDTO) UnmarshalJSON(data []byte) error {
	type plain FieldsDTO
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = FieldsDTO(p)
	f.Custom = raw
	return nil
}

// UserDTO is the assignee or myself payload.
type UserDTO struct {
	AccountID    string `json:"accountId"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// SprintDTO is a sprint in the agile board sprint listing.
type SprintDTO struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	State         string `json:"state"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	CompleteDate  string `json:"completeDate"`
	OriginBoardID int    `json:"originBoardId"`
}

// BoardDTO is a board in the agile board listing.
type BoardDTO struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Location struct {
		ProjectKey string `json:"projectKey"`
	} `json:"location"`
}

// ProjectDTO is an entry of the project listing.
type ProjectDTO struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}
