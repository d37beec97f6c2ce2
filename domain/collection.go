package domain

import "fmt"

const CollectionPageSize = 10

// OrderedCollection is the paginated ActivityPub list representation. With no
// page selected it is the summary variant (totalItems plus first/last links);
// with a page it is an OrderedCollectionPage carrying the sliced items.
type OrderedCollection struct {
	Context      []string      `json:"@context"`
	Type         string        `json:"type"`
	TotalItems   int           `json:"totalItems"`
	First        string        `json:"first,omitempty"`
	Last         string        `json:"last,omitempty"`
	Prev         string        `json:"prev,omitempty"`
	Next         string        `json:"next,omitempty"`
	OrderedItems []interface{} `json:"orderedItems,omitempty"`
}

// MakeOrderedCollection builds the collection view for the given page.
// Page 0 (or below) selects the summary. A page past the end returns nil,
// which the HTTP layer maps to 404. Items keep their original order.
func MakeOrderedCollection(endpoint string, items []interface{}, page int, perPage int) *OrderedCollection {
	if perPage <= 0 {
		perPage = CollectionPageSize
	}

	lastPage := len(items) / perPage
	if len(items)%perPage > 0 {
		lastPage++
	}

	pageLink := func(p int) string {
		return fmt.Sprintf("%s?page=%d", endpoint, p)
	}

	if page > 0 {
		first := (page - 1) * perPage
		last := first + perPage
		if first > len(items) {
			return nil
		}
		if last > len(items) {
			last = len(items)
		}

		orderedItems := items[first:last]
		if len(orderedItems) == 0 {
			return nil
		}

		collection := &OrderedCollection{
			Context:      []string{ContextActivityStreams},
			Type:         "OrderedCollectionPage",
			TotalItems:   len(items),
			First:        pageLink(1),
			Last:         pageLink(lastPage),
			OrderedItems: orderedItems,
		}

		if page > 1 {
			collection.Prev = pageLink(page - 1)
		}
		if page < lastPage {
			collection.Next = pageLink(page + 1)
		}

		return collection
	}

	collection := &OrderedCollection{
		Context:    []string{ContextActivityStreams},
		Type:       "OrderedCollection",
		TotalItems: len(items),
	}

	if len(items) > 0 {
		collection.First = pageLink(1)
		collection.Last = pageLink(lastPage)
	}

	return collection
}
