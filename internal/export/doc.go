// Package export assembles the two evaluation documents and writes them to a
// sink.
//
// # Documents
//
// A sample export is a JSON array of publications with their matches:
//
//	[
//	  {
//	    "publication_id": "pub-0001",
//	    "publication": "...",
//	    "subscription_matches": [
//	      {"subscription_id": 1, "subscription": "..."}
//	    ]
//	  }
//	]
//
// A subscription export is a JSON array of {"subscription_id", "subscriptions"}.
//
// Publication order is the sample order; match order is the resolved order.
// Documents are streamed element by element, so the subscription export
// never holds more than one corpus page.
//
// # Sinks
//
// Every sink spools to a temporary file. Commit publishes the finished
// document (rename, copy to stdout, or S3 upload); Abort discards it. The
// assembler aborts on any error, so a partial document is never published.
package export
