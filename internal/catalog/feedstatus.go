package catalog

import "strconv"

// Feed status values. A project starts at StatusNotLoaded and moves
// downloading -> indexing -> success or error. An error outcome leaves
// the previously indexed products untouched.
const (
	StatusNotLoaded   = "not_loaded"
	StatusDownloading = "downloading"
	StatusIndexing    = "indexing"
	StatusSuccess     = "success"
	StatusError       = "error"
)

// FeedStatus mirrors the per-project feed hash.
type FeedStatus struct {
	URL             string `json:"url,omitempty"`
	Status          string `json:"status"`
	Progress        int    `json:"progress"`
	Message         string `json:"message,omitempty"`
	ProductsCount   int    `json:"products_count"`
	CategoriesCount int    `json:"categories_count"`
	ShopName        string `json:"shop_name,omitempty"`
	LastUpdate      string `json:"last_update,omitempty"`
	Error           string `json:"error,omitempty"`
}

// FeedStatusFromFields decodes the stored hash. An empty map yields the
// not_loaded zero status.
func FeedStatusFromFields(fields map[string]string) FeedStatus {
	if len(fields) == 0 {
		return FeedStatus{Status: StatusNotLoaded}
	}
	st := FeedStatus{
		URL:        fields["url"],
		Status:     fields["status"],
		Message:    fields["message"],
		ShopName:   fields["shop_name"],
		LastUpdate: fields["last_update"],
		Error:      fields["error"],
	}
	if st.Status == "" {
		st.Status = StatusNotLoaded
	}
	st.Progress, _ = strconv.Atoi(fields["progress"])
	st.ProductsCount, _ = strconv.Atoi(fields["products_count"])
	st.CategoriesCount, _ = strconv.Atoi(fields["categories_count"])
	return st
}

// Fields encodes the status for the hash write. Zero-valued optional
// fields are skipped so partial phase updates do not clobber earlier
// ones.
func (s FeedStatus) Fields() map[string]string {
	fields := map[string]string{
		"status":   s.Status,
		"progress": strconv.Itoa(s.Progress),
	}
	if s.URL != "" {
		fields["url"] = s.URL
	}
	if s.Message != "" {
		fields["message"] = s.Message
	}
	if s.ProductsCount > 0 {
		fields["products_count"] = strconv.Itoa(s.ProductsCount)
	}
	if s.CategoriesCount > 0 {
		fields["categories_count"] = strconv.Itoa(s.CategoriesCount)
	}
	if s.ShopName != "" {
		fields["shop_name"] = s.ShopName
	}
	if s.LastUpdate != "" {
		fields["last_update"] = s.LastUpdate
	}
	if s.Error != "" {
		fields["error"] = s.Error
	}
	return fields
}
