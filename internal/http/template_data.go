package httpx

import (
	"net/http"

	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
)

// PageMeta contains the per-page metadata every template needs.
type PageMeta struct {
	Title       string
	CurrentPage string
}

// UserView is the part of the identity shown in page chrome.
type UserView struct {
	Name        string
	AccountName string
	Email       string
}

// PageData is the root value passed to every template.
type PageData struct {
	PageMeta
	CSRFToken   string
	CSRFField   string
	User        *UserView
	Flash       string
	Error       string
	RedirectURI string
	// Content holds page-specific data.
	Content any
}

// NewPageData fills the common fields from the request.
func NewPageData(r *http.Request, meta PageMeta) PageData {
	data := PageData{
		PageMeta:  meta,
		CSRFToken: GetCSRFToken(r),
		CSRFField: DefaultCSRFFormField,
	}
	if id, ok := CurrentIdentity(r.Context()); ok {
		data.User = newUserView(id)
	}
	return data
}

func newUserView(id domainauth.Identity) *UserView {
	return &UserView{Name: id.Name(), AccountName: id.AccountName, Email: id.Email}
}
