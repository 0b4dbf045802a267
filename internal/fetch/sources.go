// Copyright Peton Labs, 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/petonlabs/systematic-review-data-extraction/internal/pdftext"
	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// Base URLs for the content sources. Declared as vars so tests can
// substitute httptest servers.
var (
	doiBase          = "https://doi.org/"
	unpaywallAPIBase = "https://api.unpaywall.org/v2/"
	crossrefAPIBase  = "https://api.crossref.org/works/"
	ncbiIDConvBase   = "https://www.ncbi.nlm.nih.gov/pmc/utils/idconv/v1.0/"
	pmcArticleBase   = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
	pubmedEFetchBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
	arxivAPIBase     = "https://export.arxiv.org/api/query"
)

// fetchDOI resolves the DOI through doi.org and extracts text from
// whatever representation the publisher serves.
func (r *Resolver) fetchDOI(ctx context.Context, item types.WorkItem) (string, error) {
	if item.DOI == "" {
		return "", permanentErr("doi", fmt.Errorf("no DOI"))
	}
	body, contentType, err := r.client.get(ctx, "doi", doiBase+item.DOI, "text/html, application/pdf")
	if err != nil {
		return "", err
	}
	return r.bodyToText("doi", body, contentType)
}

// fetchURL downloads the supplied full-text URL directly.
func (r *Resolver) fetchURL(ctx context.Context, item types.WorkItem) (string, error) {
	if item.URL == "" {
		return "", permanentErr("url", fmt.Errorf("no URL"))
	}
	body, contentType, err := r.client.get(ctx, "url", item.URL, "")
	if err != nil {
		return "", err
	}
	return r.bodyToText("url", body, contentType)
}

// Unpaywall API JSON structures.
type unpaywallResponse struct {
	BestOALocation *unpaywallLocation  `json:"best_oa_location"`
	OALocations    []unpaywallLocation `json:"oa_locations"`
}

type unpaywallLocation struct {
	URLForPDF string `json:"url_for_pdf"`
	URL       string `json:"url"`
}

// fetchUnpaywall asks the open-access aggregator for a free full-text
// location and downloads it.
func (r *Resolver) fetchUnpaywall(ctx context.Context, item types.WorkItem) (string, error) {
	target, err := r.unpaywallLocation(ctx, item, false)
	if err != nil {
		return "", err
	}
	body, contentType, err := r.client.get(ctx, "unpaywall", target, "")
	if err != nil {
		return "", err
	}
	return r.bodyToText("unpaywall", body, contentType)
}

// unpaywallLocation returns the best open-access URL for the item.
// When pdfOnly is set, only locations with an explicit PDF link count.
func (r *Resolver) unpaywallLocation(ctx context.Context, item types.WorkItem, pdfOnly bool) (string, error) {
	if item.DOI == "" {
		return "", permanentErr("unpaywall", fmt.Errorf("no DOI"))
	}
	if r.unpaywallEmail == "" {
		return "", permanentErr("unpaywall", fmt.Errorf("no contact email configured"))
	}
	apiURL := unpaywallAPIBase + url.PathEscape(item.DOI) + "?email=" + url.QueryEscape(r.unpaywallEmail)
	body, _, err := r.client.get(ctx, "unpaywall", apiURL, "application/json")
	if err != nil {
		return "", err
	}
	var up unpaywallResponse
	if err := json.Unmarshal(body, &up); err != nil {
		return "", permanentErr("unpaywall", fmt.Errorf("parsing response: %w", err))
	}

	locations := up.OALocations
	if up.BestOALocation != nil {
		locations = append([]unpaywallLocation{*up.BestOALocation}, locations...)
	}
	for _, loc := range locations {
		if loc.URLForPDF != "" {
			return loc.URLForPDF, nil
		}
		if !pdfOnly && loc.URL != "" {
			return loc.URL, nil
		}
	}
	return "", permanentErr("unpaywall", fmt.Errorf("no open-access location for %s", item.DOI))
}

// CrossRef API JSON structures.
type crossrefResponse struct {
	Message crossrefWork `json:"message"`
}

type crossrefWork struct {
	Title    []string `json:"title"`
	Abstract string   `json:"abstract"`
}

// fetchCrossRef retrieves title and abstract from the metadata
// registry. Often abstract-only, which rarely clears the content
// threshold, but it keeps short-abstract items from coming up empty.
func (r *Resolver) fetchCrossRef(ctx context.Context, item types.WorkItem) (string, error) {
	if item.DOI == "" {
		return "", permanentErr("crossref", fmt.Errorf("no DOI"))
	}
	apiURL := crossrefAPIBase + url.PathEscape(item.DOI)
	if r.crossrefEmail != "" {
		// Identified requests go to the polite pool with better quotas.
		apiURL += "?mailto=" + url.QueryEscape(r.crossrefEmail)
	}
	body, _, err := r.client.get(ctx, "crossref", apiURL, "application/json")
	if err != nil {
		return "", err
	}
	var cr crossrefResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", permanentErr("crossref", fmt.Errorf("parsing response: %w", err))
	}

	var parts []string
	if len(cr.Message.Title) > 0 {
		parts = append(parts, cr.Message.Title[0])
	}
	if cr.Message.Abstract != "" {
		parts = append(parts, stripXMLTags(cr.Message.Abstract))
	}
	if len(parts) == 0 {
		return "", permanentErr("crossref", fmt.Errorf("no title or abstract for %s", item.DOI))
	}
	return CleanText(strings.Join(parts, "\n\n")), nil
}

// NCBI ID converter JSON structures.
type idConvResponse struct {
	Records []idConvRecord `json:"records"`
}

type idConvRecord struct {
	PMCID string `json:"pmcid"`
}

// pmcID converts a PMID to a PMCID via the NCBI ID converter.
func (r *Resolver) pmcID(ctx context.Context, item types.WorkItem) (string, error) {
	if item.PMID == "" {
		return "", permanentErr("pmc", fmt.Errorf("no PMID"))
	}
	apiURL := ncbiIDConvBase + "?ids=" + url.QueryEscape(item.PMID) + "&format=json"
	if r.ncbiKey != "" {
		apiURL += "&api_key=" + url.QueryEscape(r.ncbiKey)
	}
	body, _, err := r.client.get(ctx, "pmc", apiURL, "application/json")
	if err != nil {
		return "", err
	}
	var conv idConvResponse
	if err := json.Unmarshal(body, &conv); err != nil {
		return "", permanentErr("pmc", fmt.Errorf("parsing idconv response: %w", err))
	}
	if len(conv.Records) == 0 || conv.Records[0].PMCID == "" {
		return "", permanentErr("pmc", fmt.Errorf("PMID %s has no PubMed Central record", item.PMID))
	}
	return conv.Records[0].PMCID, nil
}

// fetchPMC retrieves the full-text article XML from PubMed Central.
func (r *Resolver) fetchPMC(ctx context.Context, item types.WorkItem) (string, error) {
	pmcid, err := r.pmcID(ctx, item)
	if err != nil {
		return "", err
	}
	apiURL := pmcArticleBase + "?db=pmc&id=" + url.QueryEscape(strings.TrimPrefix(pmcid, "PMC")) + "&rettype=xml"
	if r.ncbiKey != "" {
		apiURL += "&api_key=" + url.QueryEscape(r.ncbiKey)
	}
	body, _, err := r.client.get(ctx, "pmc", apiURL, "application/xml")
	if err != nil {
		return "", err
	}
	text := CleanText(stripXMLTags(string(body)))
	if text == "" {
		return "", permanentErr("pmc", fmt.Errorf("empty article body for %s", pmcid))
	}
	return text, nil
}

// fetchLanding extracts text from the publisher landing page, a
// separate export column from the full-text URL.
func (r *Resolver) fetchLanding(ctx context.Context, item types.WorkItem) (string, error) {
	if item.LandingURL == "" {
		return "", permanentErr("landing", fmt.Errorf("no landing URL"))
	}
	body, contentType, err := r.client.get(ctx, "landing", item.LandingURL, "text/html")
	if err != nil {
		return "", err
	}
	return r.bodyToText("landing", body, contentType)
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	Title   string      `xml:"title"`
	Summary string      `xml:"summary"`
	Links   []arxivLink `xml:"link"`
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// arxivSearch queries the preprint API by DOI and returns the first
// matching entry.
func (r *Resolver) arxivSearch(ctx context.Context, item types.WorkItem) (*arxivEntry, error) {
	if item.DOI == "" {
		return nil, permanentErr("arxiv", fmt.Errorf("no DOI"))
	}
	apiURL := arxivAPIBase + "?search_query=" + url.QueryEscape(`doi:"`+item.DOI+`"`) + "&max_results=1"
	body, _, err := r.client.get(ctx, "arxiv", apiURL, "application/atom+xml")
	if err != nil {
		return nil, err
	}
	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, permanentErr("arxiv", fmt.Errorf("parsing feed: %w", err))
	}
	if len(feed.Entries) == 0 {
		return nil, permanentErr("arxiv", fmt.Errorf("no preprint matches %s", item.DOI))
	}
	return &feed.Entries[0], nil
}

// fetchArxiv returns the preprint title and abstract, or the full PDF
// text when the feed carries a PDF link.
func (r *Resolver) fetchArxiv(ctx context.Context, item types.WorkItem) (string, error) {
	entry, err := r.arxivSearch(ctx, item)
	if err != nil {
		return "", err
	}
	for _, link := range entry.Links {
		if link.Type != "application/pdf" || link.Href == "" {
			continue
		}
		if body, contentType, err := r.client.get(ctx, "arxiv", link.Href, "application/pdf"); err == nil {
			if text, err := r.bodyToText("arxiv", body, contentType); err == nil {
				return text, nil
			}
		}
		break
	}
	return CleanText(entry.Title + "\n\n" + entry.Summary), nil
}

// PubMed efetch abstract XML structures.
type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Title    string   `xml:"MedlineCitation>Article>ArticleTitle"`
	Abstract []string `xml:"MedlineCitation>Article>Abstract>AbstractText"`
	Keywords []string `xml:"MedlineCitation>KeywordList>Keyword"`
}

// fetchPubMedMetadata is the last-resort fallback: a labeled block of
// title, abstract, and keywords so the collaborator still has
// something to work with when no full text is reachable.
func (r *Resolver) fetchPubMedMetadata(ctx context.Context, item types.WorkItem) (string, error) {
	if item.PMID == "" {
		return "", permanentErr("metadata-only", fmt.Errorf("no PMID"))
	}
	apiURL := pubmedEFetchBase + "?db=pubmed&id=" + url.QueryEscape(item.PMID) + "&rettype=abstract&retmode=xml"
	if r.ncbiKey != "" {
		apiURL += "&api_key=" + url.QueryEscape(r.ncbiKey)
	}
	body, _, err := r.client.get(ctx, "metadata-only", apiURL, "application/xml")
	if err != nil {
		return "", err
	}
	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return "", permanentErr("metadata-only", fmt.Errorf("parsing efetch response: %w", err))
	}
	if len(set.Articles) == 0 {
		return "", permanentErr("metadata-only", fmt.Errorf("PMID %s not found", item.PMID))
	}

	art := set.Articles[0]
	var b strings.Builder
	if art.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", art.Title)
	}
	if len(art.Abstract) > 0 {
		fmt.Fprintf(&b, "Abstract: %s\n\n", strings.Join(art.Abstract, " "))
	}
	if len(art.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(art.Keywords, ", "))
	}
	return CleanText(b.String()), nil
}

// bodyToText converts a fetched body to plain text based on what it
// actually is, not just what the server claimed.
func (r *Resolver) bodyToText(source string, body []byte, contentType string) (string, error) {
	switch {
	case looksLikePDF(body, contentType):
		text, err := r.pdf.Extract(body)
		if err != nil {
			return "", permanentErr(source, fmt.Errorf("extracting document text: %w", err))
		}
		return text, nil
	case strings.Contains(contentType, "html") || looksLikeHTML(body):
		text, err := htmlToText(body)
		if err != nil {
			return "", permanentErr(source, err)
		}
		return text, nil
	case strings.Contains(contentType, "xml"):
		return CleanText(stripXMLTags(string(body))), nil
	default:
		return CleanText(string(body)), nil
	}
}

var xmlTagPattern = regexp.MustCompile(`<[^>]*>`)

func stripXMLTags(s string) string {
	return xmlTagPattern.ReplaceAllString(s, " ")
}

func looksLikePDF(body []byte, contentType string) bool {
	return strings.Contains(contentType, "application/pdf") || pdftext.IsPDF(body)
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(256, len(body))]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}
