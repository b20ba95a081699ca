package views

import (
	"embed"
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"visit-ledger/models"
)

const (
	// PageSize is the number of visit records shown per admin page.
	PageSize = 10

	AdminTemplate = "admin.html"
	adminPath     = "/admin"
	clearPath     = "/admin/clear"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded page templates.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// Filter keeps the records whose IP or timestamp contains search. An empty
// search keeps everything.
func Filter(records []models.VisitRecord, search string) []models.VisitRecord {
	if search == "" {
		return records
	}
	out := make([]models.VisitRecord, 0, len(records))
	for _, r := range records {
		if strings.Contains(r.IP, search) || strings.Contains(r.Timestamp(), search) {
			out = append(out, r)
		}
	}
	return out
}

// Paginate filters records by search and returns the requested page with the
// total page count. Pages outside [1, totalPages] are empty.
func Paginate(records []models.VisitRecord, page int, search string) ([]models.VisitRecord, int) {
	filtered := Filter(records, search)
	totalPages := (len(filtered) + PageSize - 1) / PageSize
	if page < 1 || page > totalPages {
		return []models.VisitRecord{}, totalPages
	}
	start := (page - 1) * PageSize
	end := min(start+PageSize, len(filtered))
	return filtered[start:end], totalPages
}

type PageLink struct {
	Number  int
	URL     string
	Current bool
}

type AdminPage struct {
	Visits      []models.VisitRecord
	Logins      []models.LoginRecord
	Page        int
	TotalPages  int
	Search      string
	Pages       []PageLink
	ClearAction string
}

func BuildAdminPage(visits []models.VisitRecord, logins []models.LoginRecord, page int, search string) AdminPage {
	items, totalPages := Paginate(visits, page, search)
	links := make([]PageLink, 0, totalPages)
	for n := 1; n <= totalPages; n++ {
		links = append(links, PageLink{
			Number:  n,
			URL:     PageURL(n, search),
			Current: n == page,
		})
	}
	return AdminPage{
		Visits:      items,
		Logins:      logins,
		Page:        page,
		TotalPages:  totalPages,
		Search:      search,
		Pages:       links,
		ClearAction: clearPath,
	}
}

// PageURL links to an admin page, keeping the active search.
func PageURL(page int, search string) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("search", search)
	return adminPath + "?" + q.Encode()
}

// ParsePage reads the page query value. Missing, non-numeric and zero values
// mean the first page; negative values are passed through.
func ParsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page == 0 {
		return 1
	}
	return page
}
