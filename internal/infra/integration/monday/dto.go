package monday

// Item is the slice of a board item the lead flow cares about.
type Item struct {
	ID     string
	Name   string
	Phone  string
	Status string
}

type Config struct {
	APIToken       string
	BaseURL        string
	BoardID        string
	PhoneColumnID  string
	StatusColumnID string
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type columnValue struct {
	ID    string  `json:"id"`
	Text  *string `json:"text"`
	Value *string `json:"value"`
}

type itemResponse struct {
	Data struct {
		Items []struct {
			ID           string        `json:"id"`
			Name         string        `json:"name"`
			ColumnValues []columnValue `json:"column_values"`
		} `json:"items"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type itemsPage struct {
	Cursor *string `json:"cursor"`
	Items  []struct {
		ID string `json:"id"`
	} `json:"items"`
}

type itemsPageResponse struct {
	Data struct {
		ItemsPageByColumnValues *itemsPage `json:"items_page_by_column_values"`
		NextItemsPage           *itemsPage `json:"next_items_page"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type mutationResponse struct {
	Data   map[string]any `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// phoneColumnValue is the JSON stored in a phone column's value.
type phoneColumnValue struct {
	Phone            string `json:"phone"`
	CountryShortName string `json:"countryShortName"`
}
