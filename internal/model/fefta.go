package model

import "time"

// FeftaSource describes one published FEFTA classification list: the "As of"
// date parsed from the link text, when we downloaded it, and where the
// workbook was saved.
type FeftaSource struct {
	AsOfRaw      string    `json:"as_of_raw"`
	AsOfDate     time.Time `json:"as_of_date"`
	DownloadDate time.Time `json:"download_date"`
	FileURL      string    `json:"file_url"`
	SavedPath    string    `json:"saved_path,omitempty"`
}

// FeftaRecord is one company row from the FEFTA workbook. Category is the
// designation bucket (1-10, printed as circled numerals in the source);
// CoreOperator is nil for companies outside the core-sector designation.
type FeftaRecord struct {
	SecuritiesCode    string `json:"securities_code"`
	ISINCode          string `json:"isin_code"`
	CompanyNameJA     string `json:"company_name_ja"`
	IssueOrCompanyEN  string `json:"issue_or_company_name"`
	Category          int    `json:"category"`
	CoreOperator      *int   `json:"core_operator,omitempty"`
}

// FeftaChangeType tags how a company's classification moved between two
// consecutive published lists.
type FeftaChangeType string

const (
	FeftaCategoryChanged     FeftaChangeType = "CATEGORY_CHANGED"
	FeftaCoreOperatorChanged FeftaChangeType = "CORE_OPERATOR_CHANGED"
	FeftaBothChanged         FeftaChangeType = "BOTH_CHANGED"
)
