package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mbergh0930/create3x/internal/catalog"
)

// CatalogHandler serves the read-only prompt catalog.
type CatalogHandler struct {
	catalog *catalog.Catalog
}

func NewCatalogHandler(c *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

func (h *CatalogHandler) Artists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"artists": h.catalog.SortedArtists()})
}

func (h *CatalogHandler) Items(w http.ResponseWriter, r *http.Request) {
	fields := map[string]string{}
	set, err := catalog.ParseSet(chi.URLParam(r, "set"))
	if err != nil {
		fields["set"] = err.Error()
	}
	cat, err := catalog.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		fields["category"] = err.Error()
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"set":      set,
		"category": cat,
		"items":    h.catalog.Items(set, cat),
	})
}

// Resolve returns display metadata for a key. Unknown keys are not an
// error; they resolve to an item named after the key.
func (h *CatalogHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cat, err := catalog.ParseCategory(q.Get("category"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"category": err.Error()}, r))
		return
	}
	key := q.Get("key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"key": "Key is required"}, r))
		return
	}

	writeJSON(w, http.StatusOK, h.catalog.Resolve(cat, key))
}
