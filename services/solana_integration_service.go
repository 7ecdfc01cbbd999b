package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// tamanho da conta de mint SPL
const mintAccountSize = 82

const defaultConfirmPoll = 500 * time.Millisecond

// Custody entrega as chaves das carteiras cuja assinatura foi delegada ao serviço.
type Custody interface {
	Signer(wallet solana.PublicKey) (solana.PrivateKey, bool)
}

// KeyCustody é uma Custody com chaves carregadas da configuração.
type KeyCustody struct {
	keys map[solana.PublicKey]solana.PrivateKey
}

// NewKeyCustody valida o mapa carteira -> chave base58. Cada chave precisa
// corresponder à carteira informada.
func NewKeyCustody(walletKeys map[string]string) (*KeyCustody, error) {
	c := &KeyCustody{keys: make(map[solana.PublicKey]solana.PrivateKey, len(walletKeys))}
	for wallet, key := range walletKeys {
		pub, err := solana.PublicKeyFromBase58(wallet)
		if err != nil {
			return nil, fmt.Errorf("carteira inválida %q: %w", wallet, err)
		}
		priv, err := solana.PrivateKeyFromBase58(key)
		if err != nil {
			return nil, fmt.Errorf("chave inválida para carteira %s: %w", wallet, err)
		}
		if !priv.PublicKey().Equals(pub) {
			return nil, fmt.Errorf("chave não corresponde à carteira %s", wallet)
		}
		c.keys[pub] = priv
	}
	return c, nil
}

func (c *KeyCustody) Signer(wallet solana.PublicKey) (solana.PrivateKey, bool) {
	k, ok := c.keys[wallet]
	return k, ok
}

// SolanaLedger implementa Ledger com tokens SPL: uma conta de mint por
// emissão, saldos em contas associadas (ATA) de cada carteira. O emissor
// paga as taxas e detém a autoridade de mint.
type SolanaLedger struct {
	rpc            *rpc.Client
	issuer         solana.PrivateKey
	custody        Custody
	decimals       uint8
	confirmTimeout time.Duration
	confirmPoll    time.Duration
	log            *zap.Logger
}

// NewSolanaLedger conecta ao RPC informado. Cada transação enviada só é
// devolvida depois de atingir o commitment confirmed dentro de confirmTimeout.
func NewSolanaLedger(rpcURL, issuerKeyBase58 string, custody Custody, decimals uint8, confirmTimeout time.Duration, log *zap.Logger) (*SolanaLedger, error) {
	issuer, err := solana.PrivateKeyFromBase58(issuerKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("falha ao carregar chave do emissor: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SolanaLedger{
		rpc:            rpc.New(rpcURL),
		issuer:         issuer,
		custody:        custody,
		decimals:       decimals,
		confirmTimeout: confirmTimeout,
		confirmPoll:    defaultConfirmPoll,
		log:            log,
	}, nil
}

// IssuerWallet é a carteira do emissor da plataforma.
func (s *SolanaLedger) IssuerWallet() string {
	return s.issuer.PublicKey().String()
}

// atomic converte unidades inteiras em unidades mínimas do mint.
func (s *SolanaLedger) atomic(amount uint64) (uint64, error) {
	out := amount
	for i := uint8(0); i < s.decimals; i++ {
		if out > math.MaxUint64/10 {
			return 0, fmt.Errorf("quantidade %d excede o limite do mint com %d casas decimais", amount, s.decimals)
		}
		out *= 10
	}
	return out, nil
}

// Mint cria a conta de mint, a ATA do destinatário e cunha o valor numa
// única transação.
func (s *SolanaLedger) Mint(ctx context.Context, req MintRequest) (Issuance, error) {
	recipient, err := solana.PublicKeyFromBase58(req.Recipient)
	if err != nil {
		return Issuance{}, fmt.Errorf("carteira destinatária inválida: %w", err)
	}
	units, err := s.atomic(req.Amount)
	if err != nil {
		return Issuance{}, err
	}
	mint, err := solana.NewRandomPrivateKey()
	if err != nil {
		return Issuance{}, fmt.Errorf("falha ao gerar conta de mint: %w", err)
	}
	lamports, err := s.rpc.GetMinimumBalanceForRentExemption(ctx, mintAccountSize, rpc.CommitmentFinalized)
	if err != nil {
		return Issuance{}, fmt.Errorf("falha ao obter aluguel mínimo: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(recipient, mint.PublicKey())
	if err != nil {
		return Issuance{}, fmt.Errorf("falha ao derivar ATA: %w", err)
	}

	payer := s.issuer.PublicKey()
	instructions := []solana.Instruction{
		system.NewCreateAccountInstruction(lamports, mintAccountSize, token.ProgramID, payer, mint.PublicKey()).Build(),
		token.NewInitializeMintInstruction(s.decimals, payer, payer, mint.PublicKey(), solana.SysVarRentPubkey).Build(),
		associatedtokenaccount.NewCreateInstruction(payer, recipient, mint.PublicKey()).Build(),
		token.NewMintToInstruction(units, mint.PublicKey(), ata, payer, nil).Build(),
	}
	sig, err := s.send(ctx, instructions, mint)
	if err != nil {
		return Issuance{}, err
	}
	s.log.Info("token cunhado",
		zap.String("mint", mint.PublicKey().String()), zap.String("recipient", req.Recipient), zap.Stringer("tx", sig))
	return Issuance{
		IssuanceID:   mint.PublicKey().String(),
		IssuerWallet: payer.String(),
		TxSignature:  sig.String(),
	}, nil
}

// Transfer move o saldo da ATA de From para a ATA de To, criando a ATA de
// destino quando ainda não existe. From precisa estar sob custódia.
func (s *SolanaLedger) Transfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	mint, from, to, err := parseKeys(req.IssuanceID, req.From, req.To)
	if err != nil {
		return Receipt{}, err
	}
	units, err := s.atomic(req.Amount)
	if err != nil {
		return Receipt{}, err
	}
	owner, ok := s.custody.Signer(from)
	if !ok {
		return Receipt{}, fmt.Errorf("carteira %s não está sob custódia do serviço", req.From)
	}
	fromATA, _, err := solana.FindAssociatedTokenAddress(from, mint)
	if err != nil {
		return Receipt{}, fmt.Errorf("falha ao derivar ATA de origem: %w", err)
	}
	toATA, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return Receipt{}, fmt.Errorf("falha ao derivar ATA de destino: %w", err)
	}

	var instructions []solana.Instruction
	_, err = s.rpc.GetAccountInfo(ctx, toATA)
	switch {
	case errors.Is(err, rpc.ErrNotFound):
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(s.issuer.PublicKey(), to, mint).Build())
	case err != nil:
		return Receipt{}, fmt.Errorf("falha ao consultar ATA de destino: %w", err)
	}
	instructions = append(instructions,
		token.NewTransferInstruction(units, fromATA, toATA, from, nil).Build())

	sig, err := s.send(ctx, instructions, owner)
	if err != nil {
		return Receipt{}, err
	}
	s.log.Info("token transferido",
		zap.String("mint", req.IssuanceID), zap.String("from", req.From), zap.String("to", req.To), zap.Stringer("tx", sig))
	return Receipt{TxSignature: sig.String()}, nil
}

// Burn queima o saldo da ATA de Holder. Holder precisa estar sob custódia.
func (s *SolanaLedger) Burn(ctx context.Context, req BurnRequest) (Receipt, error) {
	mint, holder, _, err := parseKeys(req.IssuanceID, req.Holder, req.Holder)
	if err != nil {
		return Receipt{}, err
	}
	units, err := s.atomic(req.Amount)
	if err != nil {
		return Receipt{}, err
	}
	owner, ok := s.custody.Signer(holder)
	if !ok {
		return Receipt{}, fmt.Errorf("carteira %s não está sob custódia do serviço", req.Holder)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(holder, mint)
	if err != nil {
		return Receipt{}, fmt.Errorf("falha ao derivar ATA: %w", err)
	}
	sig, err := s.send(ctx, []solana.Instruction{
		token.NewBurnInstruction(units, ata, mint, holder, nil).Build(),
	}, owner)
	if err != nil {
		return Receipt{}, err
	}
	s.log.Info("token queimado", zap.String("mint", req.IssuanceID), zap.String("holder", req.Holder), zap.Stringer("tx", sig))
	return Receipt{TxSignature: sig.String()}, nil
}

// HolderOf devolve o dono da maior conta de token do mint. Um mint sem
// saldo em nenhuma conta devolve string vazia.
func (s *SolanaLedger) HolderOf(ctx context.Context, issuanceID string) (string, error) {
	mint, err := solana.PublicKeyFromBase58(issuanceID)
	if err != nil {
		return "", fmt.Errorf("endereço de mint inválido: %w", err)
	}
	largest, err := s.rpc.GetTokenLargestAccounts(ctx, mint, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("falha ao listar contas do mint %s: %w", issuanceID, err)
	}
	if len(largest.Value) == 0 || largest.Value[0].Amount == "0" {
		return "", nil
	}
	info, err := s.rpc.GetAccountInfo(ctx, largest.Value[0].Address)
	if err != nil {
		return "", fmt.Errorf("falha ao ler conta de token: %w", err)
	}
	var acc token.Account
	if err := acc.UnmarshalWithDecoder(bin.NewBinDecoder(info.Value.Data.GetBinary())); err != nil {
		return "", fmt.Errorf("falha ao decodificar conta de token: %w", err)
	}
	return acc.Owner.String(), nil
}

// send monta, assina e envia a transação. O emissor sempre assina como
// pagador; cosigners são as demais chaves exigidas pelas instruções.
func (s *SolanaLedger) send(ctx context.Context, instructions []solana.Instruction, cosigners ...solana.PrivateKey) (solana.Signature, error) {
	recent, err := s.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("falha ao obter blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(s.issuer.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("falha ao criar transação: %w", err)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.issuer.PublicKey()) {
			return &s.issuer
		}
		for i := range cosigners {
			if key.Equals(cosigners[i].PublicKey()) {
				return &cosigners[i]
			}
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("falha ao assinar transação: %w", err)
	}

	sig, err := s.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("falha ao enviar transação: %w", err)
	}
	if err := s.confirm(ctx, sig); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// confirm consulta o status da assinatura até ela chegar a confirmed ou
// finalized. Falha na execução on-chain ou prazo esgotado viram erro.
func (s *SolanaLedger) confirm(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	ticker := time.NewTicker(s.confirmPoll)
	defer ticker.Stop()

	for {
		out, err := s.rpc.GetSignatureStatuses(ctx, true, sig)
		switch {
		case err != nil:
			s.log.Debug("falha ao consultar status da transação", zap.Stringer("tx", sig), zap.Error(err))
		case len(out.Value) > 0 && out.Value[0] != nil:
			st := out.Value[0]
			if st.Err != nil {
				return fmt.Errorf("transação %s falhou on-chain: %v", sig, st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("transação %s não confirmada: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

func parseKeys(mint, a, b string) (solana.PublicKey, solana.PublicKey, solana.PublicKey, error) {
	m, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("endereço de mint inválido: %w", err)
	}
	pa, err := solana.PublicKeyFromBase58(a)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("carteira inválida %q: %w", a, err)
	}
	pb, err := solana.PublicKeyFromBase58(b)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("carteira inválida %q: %w", b, err)
	}
	return m, pa, pb, nil
}
