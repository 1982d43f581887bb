package scraper

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"proxyfeed/proxypool/model"
)

const (
	messageTextSelector = ".tgme_widget_message_text"
	loadMoreSelector    = ".tme_messages_more"
	cursorAttr          = "data-before"
)

// MessageExtractor 从频道页面中提取消息正文和下一页游标。
type MessageExtractor struct{}

// Extract 返回按文档逆序排列的消息，以及指向更早页面的游标。
// 页面中没有 "load more" 元素时游标为空，表示已经到达最早的一页。
func (MessageExtractor) Extract(page *model.FeedPage) ([]model.Message, model.Cursor, error) {
	if page == nil {
		return nil, "", &ParseError{Err: fmt.Errorf("nil page")}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, "", &ParseError{URL: page.URL, Err: err}
	}

	var texts []string
	doc.Find(messageTextSelector).Each(func(i int, s *goquery.Selection) {
		texts = append(texts, messageText(s))
	})

	// 输出顺序为文档顺序的逆序。
	messages := make([]model.Message, len(texts))
	for i := range texts {
		pos := len(texts) - 1 - i
		messages[pos] = model.Message{Position: pos, Text: texts[i]}
	}

	var cursor model.Cursor
	if before, ok := doc.Find(loadMoreSelector).First().Attr(cursorAttr); ok {
		cursor = model.Cursor(before)
	}

	return messages, cursor, nil
}

// messageText 把 <br> 换成换行后取纯文本，避免相邻行的 URI 粘在一起。
func messageText(s *goquery.Selection) string {
	s.Find("br").ReplaceWithHtml("\n")
	return s.Text()
}
