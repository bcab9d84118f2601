package model

type SearchResult struct {
	Stage   string
	Line    int
	Content string
}

type SearchQuery struct {
	Pattern       string
	IsRegex       bool
	CaseSensitive bool
	StageFilter   string
}

type SearchResults struct {
	Query       SearchQuery
	Matches     []SearchResult
	StageCounts map[string]int // stage -> match count
	TotalCount  int
}
