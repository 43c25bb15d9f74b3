package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/onebox-mail/onebox/internal/database/models"
	"gorm.io/gorm"
)

// FallbackReply is returned whenever reply generation fails
const FallbackReply = "Thank you for your email. I will review it and get back to you as soon as possible."

var (
	// ErrEmbeddingFailed indicates an embedding could not be generated
	ErrEmbeddingFailed = errors.New("failed to generate embedding")
	// ErrVectorLength indicates two vectors of different lengths were compared
	ErrVectorLength = errors.New("vectors must have the same length")
)

const replySystemPrompt = `You are a professional email assistant. Your task is to generate a polite, context-aware reply to incoming emails.

Use the provided context from our knowledge base to inform your response, but make the reply sound natural and personalized.

Guidelines:
- Be professional and polite
- Keep the reply concise (2-4 sentences)
- Address the main point of the email
- Use a friendly but professional tone
- If unsure, ask for clarification or suggest next steps`

// KnowledgeBase stores reply-suggestion training texts with their embedding
// vectors and produces retrieval-augmented reply suggestions.
type KnowledgeBase struct {
	db       *gorm.DB
	chat     *Client
	embedder *Client
	logger   *slog.Logger
}

// NewKnowledgeBase creates a new KnowledgeBase instance
func NewKnowledgeBase(db *gorm.DB, chat, embedder *Client, logger *slog.Logger) *KnowledgeBase {
	return &KnowledgeBase{
		db:       db,
		chat:     chat,
		embedder: embedder,
		logger:   logger.With("component", "knowledge_base"),
	}
}

// scoredText pairs a stored training text with its similarity to a query
type scoredText struct {
	Text       string
	Similarity float64
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrVectorLength
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	normA = math.Sqrt(normA)
	normB = math.Sqrt(normB)
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (normA * normB), nil
}

// StoreTrainingData embeds and stores training texts, skipping duplicates.
// Returns the number of texts stored.
func (k *KnowledgeBase) StoreTrainingData(texts []string) (int, error) {
	stored := 0
	for _, text := range texts {
		var existing models.TrainingKnowledge
		if err := k.db.Where("text = ?", text).First(&existing).Error; err == nil {
			continue
		}

		embedding, err := k.embedder.Embed(text)
		if err != nil {
			k.logger.Warn("failed to embed training text", "error", err)
			continue
		}

		encoded, err := json.Marshal(embedding)
		if err != nil {
			return stored, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}

		if err := k.db.Create(&models.TrainingKnowledge{Text: text, Embedding: string(encoded)}).Error; err != nil {
			k.logger.Warn("failed to store training text", "error", err)
			continue
		}
		stored++
	}

	k.logger.Info("training data stored", "requested", len(texts), "stored", stored)
	return stored, nil
}

// retrieveSimilar returns the topK stored texts most similar to the query embedding
func (k *KnowledgeBase) retrieveSimilar(queryEmbedding []float64, topK int) ([]scoredText, error) {
	var rows []models.TrainingKnowledge
	if err := k.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	var results []scoredText
	for _, row := range rows {
		var embedding []float64
		if err := json.Unmarshal([]byte(row.Embedding), &embedding); err != nil {
			continue
		}
		similarity, err := cosineSimilarity(queryEmbedding, embedding)
		if err != nil {
			continue
		}
		results = append(results, scoredText{Text: row.Text, Similarity: similarity})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// SuggestReply generates a retrieval-augmented reply suggestion for an email.
// It never fails: any error degrades to the generic fallback reply.
func (k *KnowledgeBase) SuggestReply(emailText string) string {
	reply, err := k.suggestReply(emailText)
	if err != nil {
		k.logger.Warn("reply suggestion failed, using fallback", "error", err)
		return FallbackReply
	}
	return reply
}

func (k *KnowledgeBase) suggestReply(emailText string) (string, error) {
	queryEmbedding, err := k.embedder.Embed(emailText)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	similar, err := k.retrieveSimilar(queryEmbedding, 3)
	if err != nil {
		return "", err
	}

	var context strings.Builder
	if len(similar) > 0 {
		context.WriteString("Here are some relevant examples from our knowledge base:\n\n")
		for i, item := range similar {
			fmt.Fprintf(&context, "Example %d (similarity: %.1f%%):\n%s\n\n", i+1, item.Similarity*100, item.Text)
		}
	} else {
		context.WriteString("No relevant training data found. Generate a generic professional reply.\n\n")
	}

	userPrompt := fmt.Sprintf("%s\nIncoming Email:\n\"%s\"\n\nGenerate a professional reply:", context.String(), emailText)

	reply, err := k.chat.Chat([]ChatMessage{
		{Role: "system", Content: replySystemPrompt},
		{Role: "user", Content: userPrompt},
	}, 0.7, 200)
	if err != nil {
		return "", err
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return FallbackReply, nil
	}
	return reply, nil
}

// sampleTrainingData seeds the knowledge base with starter reply templates
var sampleTrainingData = []string{
	"When asked about interview availability: I appreciate your interest! I am available for an interview next week. Could you please share some available time slots? I am flexible with my schedule.",
	"When asked about project timeline: Thank you for reaching out. Our typical project timeline is 4-6 weeks depending on complexity. I would be happy to discuss your specific requirements and provide a detailed estimate.",
	"When asked about pricing: Thank you for your inquiry. Our pricing varies based on project scope and requirements. I would love to schedule a call to understand your needs better and provide an accurate quote.",
	"When someone asks about our services: Thank you for your interest in our services. We specialize in web development, mobile apps, and cloud solutions. I would be happy to discuss how we can help with your specific project.",
	"When asked for a meeting: I would be delighted to meet. I am available this week on Tuesday and Thursday afternoons. Please let me know what works best for you, and I will send a calendar invite.",
	"When receiving a job application: Thank you for applying! We have received your application and our team is reviewing it. We will get back to you within 5-7 business days with next steps.",
	"When asked about technical support: Thank you for contacting support. I understand you are experiencing issues. Could you please provide more details about the problem? In the meantime, have you tried clearing your cache or restarting the application?",
	"When receiving a partnership proposal: Thank you for your partnership proposal. This sounds interesting! I would like to learn more about your company and how we can collaborate. Would you be available for a call next week?",
	"When asked about product features: Thank you for your interest in our product. The features you mentioned are indeed available in our Pro plan. I would be happy to provide a demo or answer any specific questions you have.",
	"When receiving a complaint: I sincerely apologize for the inconvenience you have experienced. Your feedback is valuable to us. I would like to resolve this issue immediately. Could you please provide your order number so I can investigate?",
}

// InitializeTrainingData seeds the knowledge base with sample data
func (k *KnowledgeBase) InitializeTrainingData() (int, error) {
	return k.StoreTrainingData(sampleTrainingData)
}
