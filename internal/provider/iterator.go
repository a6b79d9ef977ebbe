package provider

import "context"

// PageIterator walks provider result pages lazily. The consumer controls
// backpressure: the next page is not requested until Next is called again,
// so a page is only fetched after the previous one has been durably
// processed.
type PageIterator struct {
	searcher Searcher
	filters  Filters
	perPage  int

	page      int
	exhausted bool
}

// NewPageIterator creates an iterator starting at page 1.
func NewPageIterator(searcher Searcher, filters Filters, perPage int) *PageIterator {
	return &PageIterator{
		searcher: searcher,
		filters:  filters,
		perPage:  perPage,
		page:     0,
	}
}

// Next fetches the next page. It returns (nil, nil) once the provider
// signals exhaustion. Errors carry the domain taxonomy sentinels and leave
// the iterator restartable at the same page: a subsequent Next retries the
// failed page rather than skipping it.
func (it *PageIterator) Next(ctx context.Context) (*Page, error) {
	if it.exhausted {
		return nil, nil
	}

	page, err := it.searcher.SearchLeads(ctx, it.filters, it.page+1, it.perPage)
	if err != nil {
		return nil, err
	}

	it.page++
	if !page.HasMore || len(page.Records) == 0 {
		it.exhausted = true
	}
	return page, nil
}

// PageNumber returns the number of pages successfully fetched so far.
func (it *PageIterator) PageNumber() int {
	return it.page
}

// Exhausted reports whether the provider has no further pages.
func (it *PageIterator) Exhausted() bool {
	return it.exhausted
}
