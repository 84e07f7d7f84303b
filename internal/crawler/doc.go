// Package crawler holds the vocabulary of the site scraper: page records,
// fetch requests and responses, the interfaces the crawl pipeline is built
// from (Fetcher, Extractor, Frontier, Ledger, Collector), the crawl state
// machine, and the URL normalizer that decides frontier identity.
//
// Implementations live in sibling packages: the frontier in queue/memory, the
// ledger in storage/memory, the per-URL pipeline in worker and the
// coordinator in dispatcher.
package crawler
