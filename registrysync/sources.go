package registrysync

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"bitbucket.org/mohealth/registry_backend/gateway"
)

// openmrsSource pages with startIndex/limit. OpenMRS list responses carry no
// total count, so the engine stops on the first empty page.
type openmrsSource struct {
	client     gateway.Client
	path       string
	projection string
}

func NewOpenMRSSource(client gateway.Client, path string, projection string) PageSource {
	return &openmrsSource{client: client, path: path, projection: projection}
}

func (s *openmrsSource) FetchPage(ctx context.Context, page int, pageSize int) (Page, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("startIndex", strconv.Itoa((page-1)*pageSize))
	if s.projection != "" {
		params.Set("v", s.projection)
	}

	raw, err := s.client.Get(ctx, s.path, params)
	if err != nil {
		return Page{}, err
	}

	var parsed struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Page{}, err
	}
	return Page{Records: parsed.Results, Total: -1}, nil
}

// dhis2Source pages with page/pageSize and reads pager.total, so the engine
// can compute the exact page count up front.
type dhis2Source struct {
	client     gateway.Client
	path       string
	recordsKey string
	fields     string
}

func NewDHIS2Source(client gateway.Client, path string, recordsKey string, fields string) PageSource {
	return &dhis2Source{client: client, path: path, recordsKey: recordsKey, fields: fields}
}

func (s *dhis2Source) FetchPage(ctx context.Context, page int, pageSize int) (Page, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(pageSize))
	if s.fields != "" {
		params.Set("fields", s.fields)
	}

	raw, err := s.client.Get(ctx, s.path, params)
	if err != nil {
		return Page{}, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Page{}, err
	}

	total := -1
	if pagerRaw, ok := envelope["pager"]; ok {
		var pager struct {
			Total int `json:"total"`
		}
		if err := json.Unmarshal(pagerRaw, &pager); err == nil {
			total = pager.Total
		}
	}

	var records []json.RawMessage
	if recordsRaw, ok := envelope[s.recordsKey]; ok {
		if err := json.Unmarshal(recordsRaw, &records); err != nil {
			return Page{}, err
		}
	}
	return Page{Records: records, Total: total}, nil
}
