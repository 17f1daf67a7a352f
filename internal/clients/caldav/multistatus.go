package caldav

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/beevik/etree"
)

// PropfindBody returns the XML body asking for displayname, resourcetype
// and getcontenttype of every member of a collection
func PropfindBody() string {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	propfind := doc.CreateElement("d:propfind")
	propfind.CreateAttr("xmlns:d", "DAV:")

	prop := propfind.CreateElement("d:prop")
	prop.CreateElement("d:displayname")
	prop.CreateElement("d:resourcetype")
	prop.CreateElement("d:getcontenttype")

	body, err := doc.WriteToString()
	if err != nil {
		// only fails on writer errors, which a string builder never returns
		return ""
	}
	return body
}

// ParseMultistatus extracts the resources of a 207 Multi-Status body
func ParseMultistatus(body []byte) ([]Resource, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("parse multistatus: %w", err)
	}

	root := doc.Root()
	if root == nil || !strings.EqualFold(root.Tag, "multistatus") {
		return nil, fmt.Errorf("parse multistatus: unexpected root element")
	}

	var resources []Resource
	for _, resp := range root.SelectElements("response") {
		hrefEl := resp.SelectElement("href")
		if hrefEl == nil {
			continue
		}

		href := strings.TrimSpace(hrefEl.Text())
		if href == "" {
			continue
		}

		r := Resource{Href: href}
		if el := resp.FindElement(".//displayname"); el != nil {
			r.DisplayName = strings.TrimSpace(el.Text())
		}
		if el := resp.FindElement(".//getcontenttype"); el != nil {
			r.ContentType = strings.TrimSpace(el.Text())
		}
		if el := resp.FindElement(".//resourcetype/collection"); el != nil {
			r.IsCollection = true
		}

		resources = append(resources, r)
	}

	return resources, nil
}

// IsICS reports whether the resource is a calendar object ending in .ics
func (r Resource) IsICS() bool {
	if r.IsCollection {
		return false
	}
	path := r.Href
	if u, err := url.Parse(r.Href); err == nil {
		path = u.Path
	}
	return strings.HasSuffix(strings.ToLower(path), ".ics")
}

// ResolveHref turns a PROPFIND href into an absolute URL. Absolute hrefs are
// returned unchanged, relative ones are resolved against the scheme, host
// and port of collectionURL. If collectionURL cannot be parsed the href is
// resolved against https://localhost.
func ResolveHref(collectionURL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}

	base, err := url.Parse(collectionURL)
	if err != nil || base.Host == "" {
		base = &url.URL{Scheme: "https", Host: "localhost", Path: "/"}
	}
	if base.Scheme == "" {
		base.Scheme = "https"
	}

	return base.ResolveReference(ref).String()
}
