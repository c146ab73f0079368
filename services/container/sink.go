package container

import (
	"sync"

	"tmdbhelper/models"
)

// Sink receives a finished listing in order.
type Sink interface {
	AddItem(url string, entry *models.ListingEntry, isFolder bool) error
	SetProperty(key, value string) error
	Finish(updateListing bool, pluginCategory, containerContent string) error
}

// Item is one emitted listing row.
type Item struct {
	URL      string               `json:"url"`
	IsFolder bool                 `json:"isFolder"`
	Entry    *models.ListingEntry `json:"entry"`
}

// Collector is a Sink that keeps the listing in memory.
type Collector struct {
	mu            sync.Mutex
	Items         []Item            `json:"items"`
	Properties    map[string]string `json:"properties"`
	Category      string            `json:"category"`
	Content       string            `json:"content"`
	UpdateListing bool              `json:"updateListing"`
	Finished      bool              `json:"-"`
}

func NewCollector() *Collector {
	return &Collector{Items: []Item{}, Properties: map[string]string{}}
}

func (c *Collector) AddItem(url string, entry *models.ListingEntry, isFolder bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Items = append(c.Items, Item{URL: url, IsFolder: isFolder, Entry: entry})
	return nil
}

func (c *Collector) SetProperty(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Properties[key] = value
	return nil
}

func (c *Collector) Finish(updateListing bool, pluginCategory, containerContent string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UpdateListing = updateListing
	c.Category = pluginCategory
	c.Content = containerContent
	c.Finished = true
	return nil
}
