package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Group string `json:"group"`
	RefID string `json:"refId,omitempty"`
}

type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Value  int    `json:"value,omitempty"`
}

type GraphResponse struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphLink `json:"links"`
}

// getGraph links the caller's cards to their tags, content type and platform.
func (s *Server) getGraph(c *gin.Context) {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}
	cards, err := s.Cards.ListByUser(c.Request.Context(), userID, parseLimit(c.Query("limit"), 500))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
		return
	}

	seen := map[string]bool{}
	out := GraphResponse{Nodes: []GraphNode{}, Links: []GraphLink{}}
	addNode := func(id, label, group, refID string) {
		if seen[id] {
			return
		}
		seen[id] = true
		out.Nodes = append(out.Nodes, GraphNode{ID: id, Label: label, Group: group, RefID: refID})
	}
	addLink := func(source, target string) {
		out.Links = append(out.Links, GraphLink{Source: source, Target: target, Value: 1})
	}

	for _, card := range cards {
		cardNodeID := "card:" + card.ID
		label := card.Title
		if label == "" {
			label = card.URL
		}
		addNode(cardNodeID, label, "card", card.ID)

		if card.Type != "" {
			addNode("type:"+card.Type, card.Type, "type", "")
			addLink("type:"+card.Type, cardNodeID)
		}
		if p := card.Metadata().Platform; p != "" && p != "unknown" {
			addNode("platform:"+p, p, "platform", "")
			addLink("platform:"+p, cardNodeID)
		}
		for _, tag := range card.Tags() {
			addNode("tag:"+tag, tag, "tag", "")
			addLink("tag:"+tag, cardNodeID)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getTags(c *gin.Context) {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}
	tags, err := s.Cards.UserTags(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func parseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	if v > 2000 {
		return 2000
	}
	return v
}
