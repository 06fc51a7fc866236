package util

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/omamori-atelier/omamori-api/pkg/omamori/models"
)

// SetPaginationHeaders writes the total count and RFC 8288 Link header for
// a paginated list response. All link relations go into one header value;
// setHeader replaces rather than appends.
func SetPaginationHeaders(req *http.Request, setHeader func(key, value string), p models.Pagination) {
	setHeader("X-Total-Count", strconv.Itoa(p.TotalRecords))
	setHeader("X-Total-Pages", strconv.Itoa(p.TotalPages))

	links := []string{fmt.Sprintf(`<%s>; rel="self"`, req.URL.String())}
	if p.Next != nil {
		links = append(links, fmt.Sprintf(`<%s>; rel="next"`, pageURL(req, *p.Next)))
	}
	if p.Previous != nil {
		links = append(links, fmt.Sprintf(`<%s>; rel="prev"`, pageURL(req, *p.Previous)))
	}
	setHeader("Link", strings.Join(links, ", "))
}

func pageURL(req *http.Request, page int) string {
	u := *req.URL
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// PageLinks builds the HAL-style links block for a list response.
func PageLinks(baseURL string, p models.Pagination) models.Links {
	links := models.Links{
		Self: &models.Link{Href: listHref(baseURL, p.CurrentPage, p.RecordsPerPage)},
	}
	if p.Next != nil {
		links.Next = &models.Link{Href: listHref(baseURL, *p.Next, p.RecordsPerPage)}
	}
	if p.Previous != nil {
		links.Prev = &models.Link{Href: listHref(baseURL, *p.Previous, p.RecordsPerPage)}
	}
	return links
}

func listHref(baseURL string, page, perPage int) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("perPage", strconv.Itoa(perPage))
	return baseURL + "?" + v.Encode()
}
