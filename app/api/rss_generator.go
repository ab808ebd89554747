package api

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"time"

	"github.com/lysyi3m/opp-comb/app/database"
)

// ListingFeedGenerator renders recently stored listings as RSS 2.0 so
// moderators can follow what the pipeline adds.
type ListingFeedGenerator struct {
	version string
}

func NewListingFeedGenerator(version string) *ListingFeedGenerator {
	return &ListingFeedGenerator{version: version}
}

func (g *ListingFeedGenerator) Run(selfLink string, listings []database.Listing) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", "Opp Comb: recent listings", 4)
	g.writeElement(&buf, "link", selfLink, 4)
	g.writeElement(&buf, "description", "Listings stored by the ingestion pipeline, newest first", 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().In(time.Local)
	if len(listings) > 0 {
		lastBuildDate = cmp.Or(listings[0].CreatedAt, lastBuildDate)
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Opp-Comb/%s", g.version), 4)

	for _, listing := range listings {
		g.writeItem(&buf, listing)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *ListingFeedGenerator) writeItem(buf *bytes.Buffer, listing database.Listing) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(listing.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", listing.Title, 6)
	g.writeElement(buf, "link", listing.ApplicationURL, 6)
	g.writeElement(buf, "description", g.describe(listing), 6)
	g.writeElement(buf, "pubDate", listing.CreatedAt.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "category", listing.CategoryID, 6)

	for _, tag := range listing.Tags {
		g.writeElement(buf, "category", tag, 6)
	}

	if listing.SourceURL != "" {
		buf.WriteString(fmt.Sprintf("      <source url=\"%s\">", html.EscapeString(listing.SourceURL)))
		xml.EscapeText(buf, []byte(listing.SourceURL))
		buf.WriteString("</source>\n")
	}

	buf.WriteString("    </item>\n")
}

func (g *ListingFeedGenerator) describe(listing database.Listing) string {
	description := cmp.Or(listing.Description, "No description available")
	if listing.Location != "" {
		description += "\nLocation: " + listing.Location
	}
	if listing.Deadline != nil {
		description += "\nDeadline: " + listing.Deadline.Format(time.DateOnly)
	}
	if !listing.IsApproved {
		description += "\nStatus: pending review"
	}
	return description
}

func (g *ListingFeedGenerator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
