// Package htmlextract is the goquery-based PageExtractor for the catalog site.
// Selectors are heuristic: navigation is recognized by URL shape (/explore/...,
// /make/YYYY-model) rather than by CSS classes, which the site changes often.
package htmlextract
