package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ferreirogomes/custodia/models"
)

// InsertDocument registra um documento. Devolve false se já existir um
// documento do mesmo tipo para o ativo.
func (d *DB) InsertDocument(ctx context.Context, doc models.Document) (bool, error) {
	query := d.Rebind(`
INSERT INTO documents (id, asset_id, kind, content_hash, uploaded_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (asset_id, kind) DO NOTHING`)
	res, err := d.ExecContext(ctx, query, doc.ID, doc.AssetID, string(doc.Kind), doc.ContentHash, doc.UploadedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("falha ao salvar documento: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("falha ao salvar documento: %w", err)
	}
	return n == 1, nil
}

// ReplaceUnsignedDocument troca o conteúdo de um documento que ainda não
// recebeu assinaturas. Devolve false se já houver alguma assinatura.
func (d *DB) ReplaceUnsignedDocument(ctx context.Context, docID, contentHash string, uploadedAt time.Time) (bool, error) {
	query := d.Rebind(`
UPDATE documents SET content_hash = ?, uploaded_at = ?
WHERE id = ? AND NOT EXISTS (SELECT 1 FROM document_signatures WHERE document_id = ?)`)
	res, err := d.ExecContext(ctx, query, contentHash, uploadedAt.UTC(), docID, docID)
	if err != nil {
		return false, fmt.Errorf("falha ao substituir documento: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("falha ao substituir documento: %w", err)
	}
	return n == 1, nil
}

// AddSignature grava a assinatura de um papel. A operação é monotônica: se o
// papel já assinou, nada muda e o retorno é false.
func (d *DB) AddSignature(ctx context.Context, docID string, sig models.Signature) (bool, error) {
	query := d.Rebind(`
INSERT INTO document_signatures (document_id, role, signer_identity, signed_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (document_id, role) DO NOTHING`)
	res, err := d.ExecContext(ctx, query, docID, string(sig.Role), sig.SignerIdentity, sig.SignedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("falha ao gravar assinatura: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("falha ao gravar assinatura: %w", err)
	}
	return n == 1, nil
}

type signatureRow struct {
	DocumentID string `db:"document_id"`
	models.Signature
}

// GetDocuments carrega os documentos do ativo, com assinaturas, por tipo.
// Tipos ausentes não aparecem no mapa.
func (d *DB) GetDocuments(ctx context.Context, assetID string) (map[models.DocumentKind]*models.Document, error) {
	var docs []models.Document
	if err := d.SelectContext(ctx, &docs, d.Rebind(`SELECT * FROM documents WHERE asset_id = ?`), assetID); err != nil {
		return nil, fmt.Errorf("falha ao listar documentos do ativo %s: %w", assetID, err)
	}
	out := make(map[models.DocumentKind]*models.Document, len(docs))
	if len(docs) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(docs))
	for i := range docs {
		ids = append(ids, docs[i].ID)
		out[docs[i].Kind] = &docs[i]
	}
	query, args, err := sqlx.In(`
SELECT document_id, role, signer_identity, signed_at
FROM document_signatures WHERE document_id IN (?) ORDER BY signed_at, role`, ids)
	if err != nil {
		return nil, fmt.Errorf("falha ao montar consulta de assinaturas: %w", err)
	}
	var sigs []signatureRow
	if err := d.SelectContext(ctx, &sigs, d.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("falha ao listar assinaturas do ativo %s: %w", assetID, err)
	}
	byID := make(map[string]*models.Document, len(docs))
	for _, doc := range out {
		byID[doc.ID] = doc
	}
	for _, s := range sigs {
		if doc, ok := byID[s.DocumentID]; ok {
			doc.Signatures = append(doc.Signatures, s.Signature)
		}
	}
	return out, nil
}
