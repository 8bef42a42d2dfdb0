// Package retriever provides a Go client for the retriever document search
// service.
//
//	client := retriever.New("http://localhost:8080",
//	    retriever.WithAPIKey("secret"),
//	)
//	res, _ := client.Search(ctx, retriever.SearchRequest{
//	    Query:      "invoice payment terms",
//	    MaxResults: 5,
//	    UserID:     "u1",
//	})
//	for _, m := range res.TextResults {
//	    fmt.Println(m.Score, m.Content)
//	}
//
// After indexing new content, invalidate cached results:
//
//	_ = client.InvalidateCache(ctx, "")
package retriever
